// Package storage allocates deterministic inbox and output paths for jobs
// and manages the work directory layout:
//
//	<work>/inbox/{jobID}{ext}        downloaded audio, deleted per retention policy
//	<work>/out/{jobID}.mp4           finished videos
//	<transcripts>/{YYYY-MM-DD}.md    daily journal documents
//	<work>/assets/                   background image
//
// Paths depend only on the job id (and for journals, the receive date), so
// re-processing a job overwrites rather than duplicates its artifacts. All
// file access goes through an [afero.Fs] so tests can run in memory.
package storage
