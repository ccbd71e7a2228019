package link

// writeState tracks a Link's single in-flight outbound Tag.
type writeState int

const (
	writeIdle writeState = iota
	writeQueued
	writeHead
	writeContent
	writeWaitResponse
)

func (s writeState) String() string {
	switch s {
	case writeIdle:
		return "Idle"
	case writeQueued:
		return "Queued"
	case writeHead:
		return "WritingHead"
	case writeContent:
		return "WritingContent"
	case writeWaitResponse:
		return "WaitResponse"
	default:
		return "Unknown"
	}
}

// readState tracks the Link's single in-flight inbound response.
type readState int

const (
	readAwaitHead readState = iota
	readContentFixed
	readChunkHead
	readChunkBody
	readDynamic
	readDone
)

func (s readState) String() string {
	switch s {
	case readAwaitHead:
		return "AwaitHead"
	case readContentFixed:
		return "ReadContentFixed"
	case readChunkHead:
		return "ReadChunkHead"
	case readChunkBody:
		return "ReadChunkBody"
	case readDynamic:
		return "ReadDynamic"
	case readDone:
		return "Done"
	default:
		return "Unknown"
	}
}
