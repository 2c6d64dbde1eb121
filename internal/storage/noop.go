package storage

import "github.com/SluiooktueSvg/ia/internal/model/chat"

// Noop satisfies the persistence contract while keeping nothing. It backs the
// session when the storage file cannot be opened, so a broken disk degrades
// to a non-persistent session instead of refusing to start.
type Noop struct{}

func (Noop) SaveTurns([]chat.Turn)     {}
func (Noop) LoadTurns() []chat.Turn    { return nil }
func (Noop) ClearTurns()               {}
func (Noop) SetQuotaFlag()             {}
func (Noop) QuotaFlag() bool           { return false }
func (Noop) ClearQuotaFlag()           {}
