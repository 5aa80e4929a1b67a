package smokerlog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// WriteSnapshot serializes every series as a METADATA message naming the
// columns, one DATA message per series and a STREAM_END trailer. The
// selected region is not part of a snapshot.
func (st *Store) WriteSnapshot(w io.Writer) error {
	metadata := Metadata{
		XIsTimestamp: true,
		PlotOptions:  PlotOptions{Columns: st.Names()},
	}
	if err := WriteMessage(w, NewMessage(metadata)); err != nil {
		return err
	}

	for i, name := range st.names {
		if err := WriteMessage(w, NewMessage(NewDataMessage(uint32(i), *st.series[name]))); err != nil {
			return err
		}
	}

	return WriteMessage(w, NewMessage(StreamEndMessage{}))
}

// ReadSnapshot rebuilds a store from WriteSnapshot output. A stream that
// ends before its trailer is rejected.
func ReadSnapshot(r io.Reader) (*Store, error) {
	msg, err := ReadMessage(r)
	if err != nil {
		return nil, fmt.Errorf("read snapshot header: %w", err)
	}
	metadata, ok := msg.Payload.(Metadata)
	if !ok {
		return nil, fmt.Errorf("snapshot starts with message type 0x%02x, expected metadata", msg.Header.Type)
	}

	st := NewStore()
	columns := metadata.PlotOptions.Columns
	for {
		msg, err := ReadMessage(r)
		if err == io.EOF {
			return nil, fmt.Errorf("snapshot has no trailer: %w", io.ErrUnexpectedEOF)
		}
		if err != nil {
			return nil, err
		}

		switch payload := msg.Payload.(type) {
		case DataMessage:
			if int(payload.SeriesID) >= len(columns) {
				return nil, fmt.Errorf("series id %d out of range (%d columns)", payload.SeriesID, len(columns))
			}
			name := columns[payload.SeriesID]
			if _, dup := st.series[name]; dup {
				return nil, fmt.Errorf("series %q appears twice", name)
			}
			st.names = append(st.names, name)
			st.series[name] = &Series{Times: payload.X, Values: payload.Y}
		case StreamEndMessage:
			if payload.Error {
				return nil, fmt.Errorf("snapshot marked as failed: %s", payload.Msg)
			}
			return st, nil
		default:
			return nil, fmt.Errorf("unexpected message type 0x%02x in snapshot", msg.Header.Type)
		}
	}
}

// SaveSnapshot writes the store to path through a temporary file and a
// rename, so a crash leaves either the old or the new snapshot.
func SaveSnapshot(path string, st *Store) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	if err := st.WriteSnapshot(w); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}

	return os.Rename(tmp.Name(), path)
}

// LoadSnapshot reads a snapshot file. A missing file returns an error
// matching os.ErrNotExist.
func LoadSnapshot(path string) (*Store, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	return ReadSnapshot(bufio.NewReader(fh))
}

// RemoveSnapshot deletes the snapshot file; a missing file is not an error.
func RemoveSnapshot(path string) error {
	err := os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
