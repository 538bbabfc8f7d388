package model

import "time"

// JobStatus はバックグラウンドジョブの処理状態を表す。
type JobStatus string

const (
	// JobStatusAwaiting は処理待ちの状態。
	JobStatusAwaiting JobStatus = "awaiting"
	// JobStatusProcessing は処理中の状態。
	JobStatusProcessing JobStatus = "processing"
	// JobStatusSuccess は正常終了した状態。
	JobStatusSuccess JobStatus = "success"
	// JobStatusFailed は失敗した状態。
	JobStatusFailed JobStatus = "failed"
	// JobStatusUnneeded は実行せずに終了した状態。
	JobStatusUnneeded JobStatus = "unneeded"
)

// IsTerminal は終端状態かどうかを返す。
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusSuccess, JobStatusFailed, JobStatusUnneeded:
		return true
	}
	return false
}

// CanTransitionTo は状態遷移が許可されているかを返す。
// awaiting -> processing | unneeded、processing -> success | failed のみ許可する。
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobStatusAwaiting:
		return next == JobStatusProcessing || next == JobStatusUnneeded
	case JobStatusProcessing:
		return next == JobStatusSuccess || next == JobStatusFailed
	}
	return false
}

// JobAction はジョブの種別を表す。
type JobAction string

const (
	// JobActionTranscribe は文字起こしジョブ。
	JobActionTranscribe JobAction = "transcribe"
	// JobActionSummarize は要約ジョブ。
	JobActionSummarize JobAction = "summarize"
	// JobActionChat はチャット準備ジョブ。
	JobActionChat JobAction = "chat"
)

// Valid は定義済みのアクションかどうかを返す。
func (a JobAction) Valid() bool {
	switch a {
	case JobActionTranscribe, JobActionSummarize, JobActionChat:
		return true
	}
	return false
}

// Job は非同期AI処理の1単位を表す。
type Job struct {
	ID            string
	Action        JobAction
	PodcastID     string
	EpisodeNumber int
	Status        JobStatus
	IsFinished    bool
	CreatedAt     time.Time
	StartedAt     *time.Time
	FinishedAt    *time.Time
}
