// Package playback implements the single-voice playback controller.
//
// A Controller owns one voice slot. Playing a sound on a trigger handle
// stops whatever another handle is playing, marks that handle stopped, and
// only then creates and starts a fresh Voice for the new sound. Activating
// the handle that is already playing does nothing.
//
// Every play creates a new Voice and replaces the previous one for the same
// sound id. Observer callbacks carry the generation of the play call that
// created them; callbacks from an older generation are ignored, so a voice
// that ends late can never clear the state of a newer play.
//
// The controller calls Hooks while holding its lock so that MarkStopped for
// the pre-empted handle is always observed before MarkPlaying for the new
// one. Hooks and Reporter implementations must not call back into the
// Controller.
package playback
