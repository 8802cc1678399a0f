// Package rtprio asks the OS to favor the audio process. Every call is best
// effort: without privileges they fail and playback carries on regardless.
package rtprio

// DefaultNice is the niceness Raise requests when given 0.
const DefaultNice = -10
