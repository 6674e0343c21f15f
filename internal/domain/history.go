package domain

import "time"

// HistoryStatusCleared marks records whose transfer was dropped by a DownloadsCleared
const HistoryStatusCleared = "cleared"

// TransferRecord is the persisted history of one transfer in one session
type TransferRecord struct {
	SessionKey    string    `json:"session_key"`
	TransferID    int64     `json:"transfer_id"`
	URL           string    `json:"url"`
	DestDir       string    `json:"dest_dir"`
	FileName      string    `json:"file_name,omitempty"`
	Status        string    `json:"status"`
	LastError     string    `json:"last_error,omitempty"`
	BytesReceived int64     `json:"bytes_received"`
	TotalBytes    int64     `json:"total_bytes"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// IsFinished reports whether the record will not change again
func (r *TransferRecord) IsFinished() bool {
	return r.Status == HistoryStatusCleared || Phase(r.Status).IsTerminal()
}
