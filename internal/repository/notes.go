package repository

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/google/uuid"

	"github.com/langchou/carwatch/internal/models"
)

// 错误定义
var (
	ErrInvalidVehicleID = errors.New("invalid vehicle id")
	ErrNoteNotFound     = errors.New("note not found")
)

var vehicleIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// NoteStore 每辆车一个 JSON 文件保存备注
type NoteStore struct {
	dir string
	mu  sync.Mutex
}

// NewNoteStore 创建备注存储
func NewNoteStore(dir string) *NoteStore {
	return &NoteStore{dir: dir}
}

// Read 按添加顺序返回车辆的所有备注，没有备注时返回空列表
func (s *NoteStore) Read(vehicleID string) ([]models.Note, error) {
	path, err := s.path(vehicleID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return readNotes(path)
}

// Append 追加一条备注并分配 ID
func (s *NoteStore) Append(vehicleID string, note models.Note) (models.Note, error) {
	path, err := s.path(vehicleID)
	if err != nil {
		return models.Note{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	notes, err := readNotes(path)
	if err != nil {
		return models.Note{}, err
	}

	note.ID = uuid.New().String()
	notes = append(notes, note)
	if err := writeNotes(path, notes); err != nil {
		return models.Note{}, err
	}
	return note, nil
}

// Delete 删除指定下标的备注
func (s *NoteStore) Delete(vehicleID string, index int) error {
	path, err := s.path(vehicleID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	notes, err := readNotes(path)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(notes) {
		return ErrNoteNotFound
	}

	notes = append(notes[:index], notes[index+1:]...)
	return writeNotes(path, notes)
}

func (s *NoteStore) path(vehicleID string) (string, error) {
	if !vehicleIDPattern.MatchString(vehicleID) {
		return "", ErrInvalidVehicleID
	}
	return filepath.Join(s.dir, vehicleID+".json"), nil
}

func readNotes(path string) ([]models.Note, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return []models.Note{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read notes: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []models.Note{}, nil
	}

	var notes []models.Note
	if err := json.Unmarshal(data, &notes); err != nil {
		return nil, fmt.Errorf("parse notes: %w", err)
	}
	if notes == nil {
		notes = []models.Note{}
	}
	return notes, nil
}

func writeNotes(path string, notes []models.Note) error {
	data, err := json.MarshalIndent(notes, "", "  ")
	if err != nil {
		return fmt.Errorf("encode notes: %w", err)
	}
	return writeFileAtomic(path, data, 0644)
}
