// Package probe inspects audio inputs with a single ffprobe JSON call and
// returns typed results. The encoder uses it to reject sources without an
// audio stream before spending an encode on them.
package probe
