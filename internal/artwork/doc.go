// Package artwork renders the still frame and the thumbnail for a run.
//
// Both images are generated locally and deterministically from the run
// parameters: a vertical gradient, a lamp-like centerpiece and a caption bar.
// Captions are drawn with the basicfont bitmap face and scaled up, so only
// ASCII renders faithfully.
package artwork
