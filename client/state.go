package client

import "fmt"

// State is the progress of a Submission.
type State uint8

// A successful run moves through every state from StateCreated to
// StateUnpacked in order, or stops at StateDownloaded without unpacking.
// StateFailed is terminal.
const (
	StateCreated State = iota
	StatePackaged
	StateEncrypted
	StateUploaded
	StatePolling
	StateReady
	StateDownloaded
	StateDecrypted
	StateUnpacked
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StatePackaged:
		return "packaged"
	case StateEncrypted:
		return "encrypted"
	case StateUploaded:
		return "uploaded"
	case StatePolling:
		return "polling"
	case StateReady:
		return "ready"
	case StateDownloaded:
		return "downloaded"
	case StateDecrypted:
		return "decrypted"
	case StateUnpacked:
		return "unpacked"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}
