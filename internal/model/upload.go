package model

type UploadsOutput struct {
	Files      []string          `json:"files"`
	Timestamps map[string]string `json:"timestamps"`
}
