// Package stages implements the seven pipeline stages: preprocess, the audio
// branch (extract_audio, transcribe, lexical_scan), the visual branch
// (extract_frames, frame_analysis), and the compile_report join.
//
// Stages share collaborators through a Runner and per-run data through a
// State. The two branches write disjoint parts of the State, so the
// orchestrator can run them concurrently without coordination. Intermediate
// artifacts land in a per-video workspace that survives restarts; Hydrate
// reloads them so a resumed execution skips finished work.
package stages
