package model

// Script is a saved editor script. The code itself lives in the file at Path.
type Script struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Path         string `json:"path"`
	ConnectionID string `json:"connectionId,omitempty"`
	Database     string `json:"database,omitempty"`
	UpdatedAt    int64  `json:"updatedAt"`
}

// ScriptContent pairs a script record with its code.
type ScriptContent struct {
	Script
	Code string `json:"code"`
}

// Icon holds the image shown for a connection.
type Icon struct {
	ID   string `json:"id"`
	Data []byte `json:"data"`
	MIME string `json:"mime"`
}

// Settings are the general user preferences stored under settings/general.
type Settings struct {
	ShellTimeout    int    `json:"shellTimeout" validate:"min=0"`
	PageSize        int    `json:"pageSize" validate:"min=0,max=10000"`
	CSVDelimiter    string `json:"csvDelimiter" validate:"omitempty,len=1"`
	ExportDirectory string `json:"exportDirectory,omitempty"`
}
