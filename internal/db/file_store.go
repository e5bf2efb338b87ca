package db

import (
	"context"
	"errors"
	"io/fs"
	"sort"
	"sync"

	"github.com/lockwhz/bitbucket-secrets-scan/internal/fsutil"
	"github.com/lockwhz/bitbucket-secrets-scan/models"
)

// StateFileName é o arquivo de estado padrão, oculto dentro do diretório dos repositórios.
const StateFileName = ".repo-state.json"

// FileStore implementa StateStore num arquivo JSON regravado atomicamente a cada Put.
type FileStore struct {
	path   string
	mu     sync.Mutex
	states map[string]models.RepoState
}

var _ StateStore = (*FileStore)(nil)

// OpenFileStore carrega path se ele existir. Arquivo ausente é um estado vazio.
func OpenFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path, states: map[string]models.RepoState{}}
	var list []models.RepoState
	err := fsutil.ReadJSON(path, &list)
	switch {
	case err == nil:
		for _, st := range list {
			s.states[st.Repository] = st
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, err
	}
	return s, nil
}

func (s *FileStore) Get(_ context.Context, repository string) (models.RepoState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[repository]
	return st, ok, nil
}

func (s *FileStore) Put(_ context.Context, state models.RepoState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.Repository] = state
	return fsutil.WriteJSONAtomic(s.path, s.snapshot())
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) snapshot() []models.RepoState {
	list := make([]models.RepoState, 0, len(s.states))
	for _, st := range s.states {
		list = append(list, st)
	}
	sortStates(list)
	return list
}

func sortStates(list []models.RepoState) {
	sort.Slice(list, func(i, j int) bool { return list[i].Repository < list[j].Repository })
}
