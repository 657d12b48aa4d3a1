package models

// Workflow is a discovered workflow file.
type Workflow struct {
	Name string // file name without extension
	Path string
}

// ResolvedFile is one entry of an import closure: a canonical absolute path
// and the file's raw content.
type ResolvedFile struct {
	Path    string
	Content string
}

type ChatModel struct {
	ID   string `mapstructure:"id" json:"id"`
	Name string `mapstructure:"name" json:"name"`
}
