package postprocess

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
)

const defaultTelegramAPI = "https://api.telegram.org"

// Telegram sends finished recordings to a chat through the Bot API.
type Telegram struct {
	Token  string
	ChatID string
	// BaseURL defaults to the public Bot API.
	BaseURL string
	Client  *http.Client
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Upload posts the file as a document.
func (t *Telegram) Upload(ctx context.Context, path string) error {
	if t.Token == "" || t.ChatID == "" {
		return fmt.Errorf("telegram upload needs bot_token and chat_id")
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat upload: %w", err)
	}

	// Stream the multipart body instead of buffering whole recordings.
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeDocument(mw, t.ChatID, filepath.Base(path), f))
	}()

	base := strings.TrimRight(t.BaseURL, "/")
	if base == "" {
		base = defaultTelegramAPI
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/bot"+t.Token+"/sendDocument", pr)
	if err != nil {
		pr.Close()
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}

	slog.Info("Uploading recording to Telegram", "file", path, "size", humanize.Bytes(uint64(info.Size())))
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram upload failed: %w", err)
	}
	defer resp.Body.Close()

	var body telegramResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("telegram upload failed: HTTP %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK || !body.OK {
		return fmt.Errorf("telegram upload failed: HTTP %d: %s", resp.StatusCode, body.Description)
	}

	slog.Info("Upload to Telegram completed", "file", path)
	return nil
}

func writeDocument(mw *multipart.Writer, chatID, name string, r io.Reader) error {
	if err := mw.WriteField("chat_id", chatID); err != nil {
		return err
	}
	part, err := mw.CreateFormFile("document", name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, r); err != nil {
		return err
	}
	return mw.Close()
}
