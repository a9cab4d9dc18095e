package notifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"riptide/internal/pkg/circuit"
)

// Telegram pushes alert and report messages to a chat or channel. A
// circuit breaker suppresses sends while the API keeps failing, so a
// Telegram outage never backs up the alert consumer.
type Telegram struct {
	BotToken string
	ChatID   string
	Client   *http.Client

	breaker *circuit.CircuitBreaker
}

func NewTelegram(botToken, chatID string) *Telegram {
	return &Telegram{
		BotToken: botToken,
		ChatID:   chatID,
		Client:   &http.Client{Timeout: 15 * time.Second},
		breaker:  circuit.NewCircuitBreaker("telegram", 5, 2*time.Minute),
	}
}

// SendText sends a text message, retrying up to 3 times.
func (t *Telegram) SendText(text string) error {
	if t.BotToken == "" || t.ChatID == "" {
		return fmt.Errorf("telegram config incomplete")
	}
	if t.breaker != nil && !t.breaker.Allow() {
		return fmt.Errorf("telegram circuit open, message dropped")
	}
	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.BotToken)

	payload := map[string]any{
		"chat_id":    t.ChatID,
		"text":       text,
		"parse_mode": "Markdown",
	}
	body, _ := json.Marshal(payload)

	var lastErr error
	for i := 0; i < 3; i++ {
		req, _ := http.NewRequest("POST", url, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		resp, err := t.Client.Do(req)
		if err != nil {
			lastErr = err
			time.Sleep(time.Duration(i+1) * time.Second)
			continue
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode/100 == 2 {
			if t.breaker != nil {
				t.breaker.RecordSuccess()
			}
			return nil
		}
		lastErr = fmt.Errorf("telegram status=%d", resp.StatusCode)
		time.Sleep(time.Duration(i+1) * time.Second)
	}
	if t.breaker != nil {
		t.breaker.RecordFailure()
	}
	return lastErr
}
