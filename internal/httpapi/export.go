package httpapi

import (
	"bytes"
	"text/template"
	"time"

	"github.com/discussiond/engine/internal/discussion"
	"github.com/discussiond/engine/internal/roomstore"
)

// transcriptTemplate renders a room's turn log as a Markdown transcript,
// grounded on pr.RenderTemplate's text/template-over-a-data-struct idiom.
var transcriptTemplate = template.Must(template.New("transcript").Parse(
	`# {{.RoomName}}

- Room ID: {{.RoomID}}
- Created: {{.CreatedAt}}
- Participants: {{range $i, $p := .Participants}}{{if $i}}, {{end}}{{$p.DisplayName}}{{end}}

---
{{range .Turns}}
**{{.Speaker}}** _{{.Timestamp}}_

{{.Content}}
{{end}}`))

type transcriptTurn struct {
	Speaker   string
	Timestamp string
	Content   string
}

type transcriptData struct {
	RoomID       string
	RoomName     string
	CreatedAt    string
	Participants []discussion.AgentSpec
	Turns        []transcriptTurn
}

func renderTranscript(manifest roomstore.Manifest, turns []discussion.Turn) ([]byte, error) {
	names := make(map[string]string, len(manifest.Participants))
	for _, p := range manifest.Participants {
		names[p.ID] = p.DisplayName
	}

	data := transcriptData{
		RoomID:       manifest.RoomID,
		RoomName:     manifest.RoomName,
		CreatedAt:    time.Unix(manifest.CreatedAt, 0).UTC().Format(time.RFC3339),
		Participants: manifest.Participants,
		Turns:        make([]transcriptTurn, 0, len(turns)),
	}
	for _, t := range turns {
		speaker := names[t.AgentID]
		if speaker == "" {
			speaker = t.AgentID
		}
		data.Turns = append(data.Turns, transcriptTurn{
			Speaker:   speaker,
			Timestamp: t.CreatedAt.UTC().Format(time.RFC3339),
			Content:   t.Content,
		})
	}

	var buf bytes.Buffer
	if err := transcriptTemplate.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
