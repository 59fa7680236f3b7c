package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/star/orrery/internal/metrics"
)

const writeTimeout = 30 * time.Second

// client writes SSE frames to one connection. Each data frame carries an
// increasing event id.
type client struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
	ip      string
	logger  *slog.Logger

	buf     bytes.Buffer
	eventID int64
	sent    int
}

// sendJSON writes v as "id: n\ndata: {json}\n\n".
func (c *client) sendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}

	c.eventID++
	c.buf.Reset()
	c.buf.WriteString("id: ")
	c.buf.WriteString(strconv.FormatInt(c.eventID, 10))
	c.buf.WriteString("\ndata: ")
	c.buf.Write(data)
	c.buf.WriteString("\n\n")

	if err := c.flush(c.buf.Bytes()); err != nil {
		return err
	}
	metrics.IncStreamMessages()
	return nil
}

// sendKeepalive writes an SSE comment line.
func (c *client) sendKeepalive() error {
	return c.flush([]byte(":\n\n"))
}

func (c *client) flush(frame []byte) error {
	// Each write gets a fresh deadline; the stream itself has none.
	if err := c.rc.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		c.logger.Debug("could not set write deadline", "error", err)
	}
	n, err := c.w.Write(frame)
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}
	c.flusher.Flush()
	c.sent += n
	metrics.AddStreamBytes(n)
	return nil
}
