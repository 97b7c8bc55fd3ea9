// Package inference is the HTTP client for the remote gateway that fronts
// the speech transcription and frame analysis models.
package inference
