package smokerlog

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sensorRow(serial, name, temp string) string {
	return fmt.Sprintf(`<tr><td>%s</td><td><input type="text" name="n%s" value="%s"></td><td>%s</td>`+
		`<td><input type="text" value="225"></td><td><select><option>None</option></select></td>`+
		`<td><input type="text" value="200"></td><td><input type="text" value="250"></td>`+
		`<td><select><option>None</option></select></td></tr>`, serial, serial, name, temp)
}

// stokerPage renders a status page the way the appliance lays it out: system
// info in the first outer row and the sensor table nested in the second.
func stokerPage(rows ...string) string {
	var sb strings.Builder
	sb.WriteString(`<html><head><title>Stoker</title></head><body><table><form action="stoker.Post_Handler" method="post">`)
	sb.WriteString(`<tr><td><p>Stoker Status<br>Serial 0123<br>Version 2.7.2</p></td></tr>`)
	sb.WriteString(`<tr><td><table>`)
	for i := 0; i < stokerHeaderRows; i++ {
		fmt.Fprintf(&sb, `<tr><td colspan="8">header %d</td></tr>`, i)
	}
	for _, r := range rows {
		sb.WriteString(r)
	}
	sb.WriteString(`<tr><td colspan="8"><input type="submit" value="Update"></td></tr>`)
	sb.WriteString(`</table></td></tr></form></table></body></html>`)
	return sb.String()
}

func TestParseStokerPage(t *testing.T) {
	t.Run("valid rows", func(t *testing.T) {
		page := stokerPage(
			sensorRow("A90000111D6E8A30", "Pit", "224.6"),
			sensorRow("FB0000111CA8D830", "Brisket", "161.3"),
		)

		version, sensors, err := ParseStokerPage([]byte(page))
		require.NoError(t, err)
		assert.Equal(t, "2.7.2", version)
		require.Len(t, sensors, 2)
		assert.Equal(t, StokerSensor{
			Serial: "A90000111D6E8A30", Name: "Pit", Temp: 224.6,
			Target: 225, LowSet: 200, HighSet: 250,
		}, sensors[0])
		assert.Equal(t, "Brisket", sensors[1].Name)
		assert.Equal(t, 161.3, sensors[1].Temp)
	})

	t.Run("malformed rows are skipped", func(t *testing.T) {
		page := stokerPage(
			sensorRow("A90000111D6E8A30", "Pit", "224.6"),
			sensorRow("FB0000111CA8D830", "Brisket", "--"),
			sensorRow("", "NoSerial", "100"),
			sensorRow("C20000111CA8D830", "", "100"),
			sensorRow("E40000111CA8D830", "Probe", "NaN"),
			sensorRow("E50000111CA8D830", "Probe2", "+Inf"),
			`<tr><td>only</td><td>three</td><td>cells</td></tr>`,
			sensorRow("D30000111CA8D830", "Ambient", "71"),
		)

		_, sensors, err := ParseStokerPage([]byte(page))
		require.NoError(t, err)
		require.Len(t, sensors, 2)
		assert.Equal(t, "Pit", sensors[0].Name)
		assert.Equal(t, "Ambient", sensors[1].Name)
	})

	t.Run("no sensors", func(t *testing.T) {
		_, sensors, err := ParseStokerPage([]byte(stokerPage()))
		require.NoError(t, err)
		assert.Empty(t, sensors)
	})

	t.Run("not a status page", func(t *testing.T) {
		_, _, err := ParseStokerPage([]byte(`<html><body><p>maintenance</p></body></html>`))
		assert.Error(t, err)
	})
}

func newTestFetcher(t *testing.T, srv *httptest.Server, timeout time.Duration) *HTTPFetcher {
	f, err := NewHTTPFetcher(WithHTTPClient(srv.Client()), WithLimiter(nil), WithTimeout(timeout))
	require.NoError(t, err)
	return f
}

func hostOf(srv *httptest.Server) string {
	return strings.TrimPrefix(srv.URL, "http://")
}

func TestStokerWebSourceFetch(t *testing.T) {
	stamp := time.Date(2024, 6, 1, 12, 30, 15, 500, time.Local)

	t.Run("reading from page", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, stokerPage(
				sensorRow("A90000111D6E8A30", "Pit", "224.6"),
				sensorRow("FB0000111CA8D830", "Brisket", "bad"),
				sensorRow("D30000111CA8D830", "Ambient", "71"),
			))
		}))
		defer srv.Close()

		source := NewStokerWebSource(hostOf(srv), newTestFetcher(t, srv, time.Second))
		source.now = func() time.Time { return stamp }

		reading, ok := source.Fetch(context.Background())
		require.True(t, ok)
		assert.True(t, reading.Time.Equal(stamp.Truncate(time.Second)), "reading time %v", reading.Time)
		assert.Equal(t, []SensorValue{{Name: "Pit", Value: 224.6}, {Name: "Ambient", Value: 71}}, reading.Temps)
		assert.Equal(t, "2.7.2", source.Info().Version)
	})

	t.Run("server error is no data", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "busy", http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		source := NewStokerWebSource(hostOf(srv), newTestFetcher(t, srv, time.Second))
		_, ok := source.Fetch(context.Background())
		assert.False(t, ok)
	})

	t.Run("timeout is no data", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		defer close(release)

		source := NewStokerWebSource(hostOf(srv), newTestFetcher(t, srv, 50*time.Millisecond))
		start := time.Now()
		_, ok := source.Fetch(context.Background())
		assert.False(t, ok)
		assert.Less(t, time.Since(start), 2*time.Second)
	})

	t.Run("unparsable page is no data", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "<html><body>rebooting</body></html>")
		}))
		defer srv.Close()

		source := NewStokerWebSource(hostOf(srv), newTestFetcher(t, srv, time.Second))
		_, ok := source.Fetch(context.Background())
		assert.False(t, ok)
	})
}
