package model

const (
	ParseStatusUploaded     = "uploaded"
	ParseStatusParsed       = "parsed"
	ParseStatusParsedNoText = "parsed_no_text"
	ParseStatusMissingFile  = "missing_file"
	ParseStatusFailed       = "failed"
)

type Document struct {
	ID               int64                  `json:"id"`
	Name             string                 `json:"name"`
	OriginalFilename string                 `json:"original_filename"`
	FileKey          string                 `json:"file_key"`
	FileSize         int64                  `json:"file_size"`
	ContentType      string                 `json:"content_type"`
	AssistantID      *int64                 `json:"assistant_id"`
	ParseStatus      string                 `json:"parse_status"`
	ParsedAt         int64                  `json:"parsed_at"`
	Parameters       map[string]interface{} `json:"parameters"`
	ParseResult      map[string]interface{} `json:"parse_result"`
	Description      string                 `json:"description"`
	Ctime            int64                  `json:"ctime"`
	Mtime            int64                  `json:"mtime"`
}
