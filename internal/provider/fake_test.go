package provider

import (
	"bytes"
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/tonimelisma/alipan-go/internal/alipan"
	"github.com/tonimelisma/alipan-go/internal/notify"
	"github.com/tonimelisma/alipan-go/internal/session"
	"github.com/tonimelisma/alipan-go/internal/tasks"
)

// fakeRemote is an in-memory API. Folders hold pages of items; listing a
// folder returns its pages in order.
type fakeRemote struct {
	mu sync.Mutex

	drives  alipan.DriveInfo
	pages   map[string][][]alipan.Item // drive/folder -> pages
	files   map[string]alipan.Item     // drive/file -> item
	urls    map[string]string          // drive/file -> download URL
	nextID  int
	listErr error

	createErr   error
	trashErr    error
	uploadErr   error
	completeErr error

	listCalls      int
	getFileCalls   int
	driveInfoCalls int
	uploaded       map[string][]byte // upload URL -> body
	completed      []string          // file ids
	trashed        []string
	createdNames   []string
	searchQuery    string
	searchResults  []alipan.Item
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		drives:   alipan.DriveInfo{BackupDriveID: "100", ResourceDriveID: "200"},
		pages:    make(map[string][][]alipan.Item),
		files:    make(map[string]alipan.Item),
		urls:     make(map[string]string),
		uploaded: make(map[string][]byte),
	}
}

func fileItem(driveID, parentID, fileID, name string) alipan.Item {
	return alipan.Item{
		DriveID:      driveID,
		FileID:       fileID,
		ParentFileID: parentID,
		Name:         name,
		Kind:         alipan.KindFile,
		MimeType:     "application/octet-stream",
		Size:         10,
	}
}

func (f *fakeRemote) setPages(driveID, folderID string, pages ...[]alipan.Item) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.pages[driveID+"/"+folderID] = pages

	for _, page := range pages {
		for _, it := range page {
			f.files[driveID+"/"+it.FileID] = it
		}
	}
}

func (f *fakeRemote) ListFiles(_ context.Context, driveID, parentFileID, marker string, _ int) (*alipan.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.listCalls++

	if f.listErr != nil {
		return nil, f.listErr
	}

	pages := f.pages[driveID+"/"+parentFileID]
	if len(pages) == 0 {
		return &alipan.Page{}, nil
	}

	idx := 0
	if marker != "" {
		idx, _ = strconv.Atoi(marker)
	}

	page := &alipan.Page{Items: append([]alipan.Item(nil), pages[idx]...)}
	if idx+1 < len(pages) {
		page.NextMarker = strconv.Itoa(idx + 1)
	}

	return page, nil
}

func (f *fakeRemote) GetDriveInfo(context.Context) (*alipan.DriveInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.driveInfoCalls++
	d := f.drives

	return &d, nil
}

func (f *fakeRemote) GetFile(_ context.Context, driveID, fileID string) (*alipan.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.getFileCalls++

	it, ok := f.files[driveID+"/"+fileID]
	if !ok {
		return nil, &alipan.APIError{StatusCode: 404, Err: alipan.ErrNotFound}
	}

	return &it, nil
}

func (f *fakeRemote) SearchFiles(_ context.Context, _ string, query string, _ int) (*alipan.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.searchQuery = query

	return &alipan.Page{Items: f.searchResults}, nil
}

func (f *fakeRemote) GetDownloadURL(_ context.Context, driveID, fileID string) (*alipan.DownloadURL, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.urls[driveID+"/"+fileID]
	if !ok {
		return nil, &alipan.APIError{StatusCode: 404, Err: alipan.ErrNotFound}
	}

	return &alipan.DownloadURL{URL: u, Size: f.files[driveID+"/"+fileID].Size}, nil
}

func (f *fakeRemote) CreateFile(_ context.Context, driveID, _, name, _ string) (*alipan.UploadTarget, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.createErr != nil {
		return nil, f.createErr
	}

	f.createdNames = append(f.createdNames, name)
	f.nextID++
	id := "new" + strconv.Itoa(f.nextID)

	return &alipan.UploadTarget{
		DriveID:   driveID,
		FileID:    id,
		FileName:  name,
		UploadID:  "up-" + id,
		UploadURL: "https://upload/" + id,
	}, nil
}

func (f *fakeRemote) UploadPart(_ context.Context, uploadURL string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.uploadErr != nil {
		return f.uploadErr
	}

	f.uploaded[uploadURL] = append([]byte(nil), data...)

	return nil
}

func (f *fakeRemote) CompleteUpload(_ context.Context, driveID, fileID, _ string) (*alipan.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.completeErr != nil {
		return nil, f.completeErr
	}

	f.completed = append(f.completed, fileID)
	it := fileItem(driveID, "root", fileID, fileID)

	return &it, nil
}

func (f *fakeRemote) Trash(_ context.Context, driveID, fileID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.trashErr != nil {
		return f.trashErr
	}

	f.trashed = append(f.trashed, fileID)

	for key, pages := range f.pages {
		for i, page := range pages {
			kept := page[:0:0]

			for _, it := range page {
				if it.FileID != fileID {
					kept = append(kept, it)
				}
			}

			f.pages[key][i] = kept
		}
	}

	delete(f.files, driveID+"/"+fileID)

	return nil
}

type memStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]string)}
}

func (s *memStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.data[key]

	return v, ok, nil
}

func (s *memStore) SetMany(_ context.Context, values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, v := range values {
		s.data[k] = v
	}

	return nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	topics []string
}

func (n *recordingNotifier) Notify(topic string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.topics = append(n.topics, topic)
}

func (n *recordingNotifier) seen() []string {
	n.mu.Lock()
	defer n.mu.Unlock()

	return append([]string(nil), n.topics...)
}

type staticAuth bool

func (a staticAuth) Status(context.Context) (session.Status, error) {
	return session.Status{LoggedIn: bool(a)}, nil
}

var _ notify.Notifier = (*recordingNotifier)(nil)

type harness struct {
	p      *Provider
	remote *fakeRemote
	store  *memStore
	queue  *tasks.Queue
	notes  *recordingNotifier
}

func newHarness(opts ...func(*Options)) *harness {
	h := &harness{
		remote: newFakeRemote(),
		store:  newMemStore(),
		queue:  tasks.NewQueue(nil),
		notes:  &recordingNotifier{},
	}

	o := Options{
		Remote:    h.remote,
		Store:     h.store,
		Auth:      staticAuth(true),
		Submitter: h.queue,
		Notifier:  h.notes,
	}

	for _, fn := range opts {
		fn(&o)
	}

	h.p = New(o)

	return h
}

// withDrives stores resolved drive ids so roots are known up front.
func (h *harness) withDrives() *harness {
	h.store.data[KeyBackupDriveID] = "100"
	h.store.data[KeyResourceDriveID] = "200"

	return h
}

var timeZero time.Time

func bytesReader(b []byte) *bytes.Reader {
	return bytes.NewReader(b)
}
