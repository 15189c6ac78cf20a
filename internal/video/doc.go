// Package video holds the loop and render stages.
//
// The loop stage either reuses a configured loop clip or animates the still
// frame into a short clip. The render stage repeats that loop for the length
// of the soundtrack, optionally bracketed by intro and outro clips.
package video
