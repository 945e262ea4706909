// Package pipeline runs one radar pass end to end.
//
// Order of a run: load the star cache, retrieve every channel, rank, save
// the updated cache, build and write the digest, deliver it, then write the
// metrics textfile. The HTML report is on disk before any delivery is
// attempted, so a failed delivery still leaves the report behind.
package pipeline
