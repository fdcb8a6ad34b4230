package immortal

import "sort"

// FileState describes a path's last-known effect as of a resurrection
// point, plus which block produced it.
type FileState struct {
	Path       string
	Op         FileOpKind
	Sequence   uint64
	LastDetail string
}

// Resurrection is the deterministic replay of every block captured at or
// before a point in time.
type Resurrection struct {
	BlockCount int
	FilesState map[string]FileState
	Decisions  []Block
	Messages   []Block
}

// Resurrect replays every block with Timestamp <= timestampMicros (UnixMicro
// units, matching Block.Timestamp) and accumulates per-path file state,
// decisions, and messages. Replay is a pure fold over the chain: the same
// timestamp always yields the same result, whether run fresh or after a
// process restart that rehydrated the log from disk.
func (l *Log) Resurrect(timestampMicros int64) Resurrection {
	l.mu.Lock()
	all := append([]Block(nil), l.blocks...)
	l.mu.Unlock()

	res := Resurrection{FilesState: make(map[string]FileState)}
	for _, b := range all {
		if b.Timestamp > timestampMicros {
			continue
		}
		res.BlockCount++
		switch b.PayloadTag {
		case TagFileOp:
			res.FilesState[b.Path] = FileState{
				Path:       b.Path,
				Op:         b.FileOp,
				Sequence:   b.Sequence,
				LastDetail: b.Text,
			}
		case TagDecision:
			res.Decisions = append(res.Decisions, b)
		case TagMessage:
			res.Messages = append(res.Messages, b)
		}
	}
	return res
}

// SessionResumeState is what a resumed session needs to reorient itself:
// recent conversation, every file touched and its last operation, and
// decisions made. It carries no error/resolution pairs.
type SessionResumeState struct {
	BlockCount     int
	RecentMessages []Block
	FilesTouched   []FileState
	Decisions      []Block
	AllFiles       []string
}

// SessionResume folds the entire chain (there is no "as of" cutoff; this is
// always "as of now") and caps RecentMessages to the most recent
// recentMessageLimit messages.
func (l *Log) SessionResume(recentMessageLimit int) SessionResumeState {
	l.mu.Lock()
	all := append([]Block(nil), l.blocks...)
	l.mu.Unlock()

	filesState := make(map[string]FileState)
	var decisions, messages []Block
	for _, b := range all {
		switch b.PayloadTag {
		case TagFileOp:
			filesState[b.Path] = FileState{Path: b.Path, Op: b.FileOp, Sequence: b.Sequence, LastDetail: b.Text}
		case TagDecision:
			decisions = append(decisions, b)
		case TagMessage:
			messages = append(messages, b)
		}
	}

	if recentMessageLimit > 0 && len(messages) > recentMessageLimit {
		messages = messages[len(messages)-recentMessageLimit:]
	}

	files := make([]string, 0, len(filesState))
	touched := make([]FileState, 0, len(filesState))
	for path, fs := range filesState {
		files = append(files, path)
		touched = append(touched, fs)
	}
	sort.Strings(files)
	sort.Slice(touched, func(i, j int) bool { return touched[i].Path < touched[j].Path })

	return SessionResumeState{
		BlockCount:     len(all),
		RecentMessages: messages,
		FilesTouched:   touched,
		Decisions:      decisions,
		AllFiles:       files,
	}
}
