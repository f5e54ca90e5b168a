// Package player runs overlapping playbacks on top of the mixer and
// delivers the combined output to a pluggable transport. Transports cover
// the local audio device (beep/oto) and a null sink for tests and headless
// runs; an optional WAV capture records everything the transport receives.
package player
