package domain

import "time"

// Upload is a single user-supplied file, as handed over by the presentation layer.
type Upload struct {
	Name string
	Data []byte
}

// Size returns the upload size in bytes.
func (u Upload) Size() int64 {
	return int64(len(u.Data))
}

// Document is the text of one page (or section) of an upload.
type Document struct {
	ID     string
	Source string // upload name
	Page   int    // one-based page number
	Text   string
}

// Chunk is a bounded passage of a Document. Start and End are byte offsets
// into the Document text, Text == doc.Text[Start:End].
type Chunk struct {
	ID     string
	DocID  string
	Source string
	Page   int
	Index  int // position within the document
	Start  int
	End    int
	Text   string
}

type ScoredChunk struct {
	Chunk Chunk
	Score float64
}

// Role identifies the speaker of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) String() string {
	return string(r)
}

// Message is one entry of a generation request.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Turn is one utterance recorded in a session transcript.
// Use UserTurn and AssistantTurn to build one.
type Turn struct {
	Role Role
	Text string
	At   time.Time
}

func UserTurn(text string) Turn {
	return Turn{Role: RoleUser, Text: text, At: time.Now()}
}

func AssistantTurn(text string) Turn {
	return Turn{Role: RoleAssistant, Text: text, At: time.Now()}
}

// Message converts the turn to its generation wire form.
func (t Turn) Message() Message {
	return Message{Role: t.Role, Content: t.Text}
}

// AnswerResult is the outcome of one conversational turn.
type AnswerResult struct {
	Text            string        `json:"answer"`
	StandaloneQuery string        `json:"standalone_query"`
	Sources         []ScoredChunk `json:"sources,omitempty"`
}

// IndexStats summarises a built index.
type IndexStats struct {
	Files     int
	Pages     int
	Chunks    int
	Dimension int
	BuiltAt   time.Time
	Duration  time.Duration
}
