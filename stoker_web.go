package smokerlog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// The status page's sensor table starts with four header rows and ends with
// one footer row.
const (
	stokerHeaderRows = 4
	stokerFooterRows = 1
)

// Columns of a sensor row in the Stoker status page.
const (
	colSerial  = 0 // plain text
	colName    = 1 // <input value>
	colTemp    = 2 // plain text
	colTarget  = 3 // <input value>
	colAlarm   = 4 // <select>, not consumed
	colLowSet  = 5 // <input value>
	colHighSet = 6 // <input value>
	colBlower  = 7 // <select>, not consumed

	minSensorColumns = colHighSet + 1
)

var firmwareVersion = regexp.MustCompile(`(\d+\.*){1,4}`)

// StokerSensor is one fully parsed row of the status page sensor table.
type StokerSensor struct {
	Serial  string
	Name    string
	Temp    float64
	Target  float64
	LowSet  float64
	HighSet float64
}

// StokerWebSource scrapes the HTML status page served by first generation
// Stoker firmware.
//
// The page is a table under <body> (wrapped in a <form>). Its first row holds
// system information, its second row a nested table of sensors. Within the
// nested table, rows [4, len-1) are sensors; see the col* constants for the
// cells consumed. Rows that do not parse completely are skipped.
type StokerWebSource struct {
	host    string
	url     string
	fetcher *HTTPFetcher
	now     func() time.Time
	logger  logrus.FieldLogger

	version string
}

func NewStokerWebSource(host string, fetcher *HTTPFetcher) *StokerWebSource {
	return &StokerWebSource{
		host:    host,
		url:     fmt.Sprintf("http://%s", host),
		fetcher: fetcher,
		now:     time.Now,
		logger:  logrus.WithField("tag", "StokerWebSource"),
	}
}

func (s *StokerWebSource) String() string {
	return fmt.Sprintf("Stoker Web Interface (%s)", s.host)
}

func (s *StokerWebSource) Info() SourceInfo {
	return SourceInfo{TempUnits: "F", Version: s.version}
}

func (s *StokerWebSource) Fetch(ctx context.Context) (Reading, bool) {
	body, err := s.fetcher.Get(ctx, s.url)
	if err != nil {
		logFetchError(s.logger, err)
		return Reading{}, false
	}

	version, sensors, err := ParseStokerPage(body)
	if err != nil {
		s.logger.WithError(err).Warn("cannot parse status page, will try again later")
		return Reading{}, false
	}
	if version != "" {
		s.version = version
	}

	temps := make([]SensorValue, 0, len(sensors))
	for _, sensor := range sensors {
		temps = append(temps, SensorValue{Name: sensor.Name, Value: sensor.Temp})
	}

	return NewReading(s.now(), temps), true
}

func logFetchError(logger logrus.FieldLogger, err error) {
	if errors.Is(err, context.DeadlineExceeded) {
		logger.WithError(err).Debug("request timed out. if this keeps happening, check that the host is up")
		return
	}
	logger.WithError(err).Warn("error requesting data, will try again later")
}

// ParseStokerPage extracts the firmware version and the complete sensor rows
// from a status page. It fails only when the page does not have the outer
// table layout at all; malformed sensor rows are skipped.
func ParseStokerPage(page []byte) (string, []StokerSensor, error) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return "", nil, fmt.Errorf("cannot parse html: %w", err)
	}

	body := findFirst(doc, atom.Body)
	if body == nil {
		return "", nil, fmt.Errorf("document has no body")
	}

	outer := findFirst(body, atom.Table)
	if outer == nil {
		return "", nil, fmt.Errorf("document has no table")
	}

	rows := tableRows(outer)
	if len(rows) < 2 {
		return "", nil, fmt.Errorf("expected at least 2 rows in the outer table, got %d", len(rows))
	}

	version := parseSystemInfo(rows[0])

	dataTable := findFirst(rows[1], atom.Table)
	if dataTable == nil {
		return version, nil, fmt.Errorf("data row has no sensor table")
	}

	sensorRows := tableRows(dataTable)
	sensors := make([]StokerSensor, 0, len(sensorRows))
	for i := stokerHeaderRows; i < len(sensorRows)-stokerFooterRows; i++ {
		sensor, err := parseSensorRow(sensorRows[i])
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"tag": "StokerWebSource",
				"row": i,
			}).WithError(err).Debug("ignoring sensor row")
			continue
		}
		sensors = append(sensors, sensor)
	}

	return version, sensors, nil
}

func parseSystemInfo(row *html.Node) string {
	p := findFirst(row, atom.P)
	if p == nil {
		return ""
	}

	brs := 0
	for c := p.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Br {
			brs++
			continue
		}
		if brs == 2 && c.Type == html.TextNode {
			if match := firmwareVersion.FindString(c.Data); match != "" {
				return match
			}
			return strings.TrimSpace(c.Data)
		}
	}

	return ""
}

func parseSensorRow(row *html.Node) (StokerSensor, error) {
	cols := childElements(row, atom.Td)
	if len(cols) < minSensorColumns {
		return StokerSensor{}, fmt.Errorf("%w: %d columns", errSkipRow, len(cols))
	}

	var sensor StokerSensor
	sensor.Serial = strings.TrimSpace(textContent(cols[colSerial]))
	if sensor.Serial == "" {
		return StokerSensor{}, fmt.Errorf("%w: no serial number", errSkipRow)
	}

	sensor.Name = strings.TrimSpace(inputValue(cols[colName]))
	if sensor.Name == "" {
		return StokerSensor{}, fmt.Errorf("%w: no name", errSkipRow)
	}

	var err error
	if sensor.Temp, err = parseCell(textContent(cols[colTemp])); err != nil {
		return StokerSensor{}, fmt.Errorf("%w: temperature: %v", errSkipRow, err)
	}
	if sensor.Target, err = parseCell(inputValue(cols[colTarget])); err != nil {
		return StokerSensor{}, fmt.Errorf("%w: target: %v", errSkipRow, err)
	}
	if sensor.LowSet, err = parseCell(inputValue(cols[colLowSet])); err != nil {
		return StokerSensor{}, fmt.Errorf("%w: low set: %v", errSkipRow, err)
	}
	if sensor.HighSet, err = parseCell(inputValue(cols[colHighSet])); err != nil {
		return StokerSensor{}, fmt.Errorf("%w: high set: %v", errSkipRow, err)
	}

	return sensor, nil
}

func parseCell(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: not a finite number %q", errSkipRow, s)
	}
	return v, nil
}

// tableRows returns the rows belonging to table, looking through section and
// form wrappers but never into nested tables.
func tableRows(table *html.Node) []*html.Node {
	var rows []*html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			switch c.DataAtom {
			case atom.Tr:
				rows = append(rows, c)
			case atom.Tbody, atom.Thead, atom.Tfoot, atom.Form:
				walk(c)
			}
		}
	}
	walk(table)
	return rows
}

func childElements(n *html.Node, a atom.Atom) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == a {
			out = append(out, c)
		}
	}
	return out
}

// findFirst returns the first descendant of n (depth first) with the atom a.
func findFirst(n *html.Node, a atom.Atom) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == a {
			return c
		}
		if found := findFirst(c, a); found != nil {
			return found
		}
	}
	return nil
}

// textContent returns the text directly inside n, ignoring child elements.
func textContent(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	}
	return sb.String()
}

func inputValue(n *html.Node) string {
	input := findFirst(n, atom.Input)
	if input == nil {
		return ""
	}
	for _, attr := range input.Attr {
		if attr.Key == "value" {
			return attr.Val
		}
	}
	return ""
}
