package syncengine

import (
	"context"
	"net/url"
)

// fakeTransport is an in-memory stand-in for HTTPTransport, keyed by path.
// Tests configure canned responses and/or errors per call; calls are
// recorded so assertions can inspect what the engine actually sent.
type fakeTransport struct {
	base *url.URL

	putErr    map[string]error
	putEtag   map[string]string
	deleteErr map[string]error
	moveErr   map[string]error
	getEtag   map[string]string
	getBody   map[string]string
	getErr    map[string]error
	listing   map[string]map[string]string
	listErr   map[string]error
	token     map[string]string
	tokenErr  map[string]error

	puts    []fakePut
	deletes []string
	moves   []fakeMove
	gets    []string
	lists   []string
}

type fakePut struct {
	path, body, ifMatch string
	create               bool
}

type fakeMove struct {
	source, dest string
	overwrite    bool
}

func newFakeTransport() *fakeTransport {
	u, _ := url.Parse("https://caldav.example.com")
	return &fakeTransport{
		base:      u,
		putErr:    map[string]error{},
		putEtag:   map[string]string{},
		deleteErr: map[string]error{},
		moveErr:   map[string]error{},
		getEtag:   map[string]string{},
		getBody:   map[string]string{},
		getErr:    map[string]error{},
		listing:   map[string]map[string]string{},
		listErr:   map[string]error{},
		token:     map[string]string{},
		tokenErr:  map[string]error{},
	}
}

func (f *fakeTransport) BaseURL() *url.URL { return f.base }

func (f *fakeTransport) Put(ctx context.Context, path, contentType, body, ifMatch string, create bool) (string, error) {
	f.puts = append(f.puts, fakePut{path: path, body: body, ifMatch: ifMatch, create: create})
	if err, ok := f.putErr[path]; ok {
		return "", err
	}
	return f.putEtag[path], nil
}

func (f *fakeTransport) Delete(ctx context.Context, path, ifMatch string) error {
	f.deletes = append(f.deletes, path)
	if err, ok := f.deleteErr[path]; ok {
		return err
	}
	return nil
}

func (f *fakeTransport) Move(ctx context.Context, sourcePath, absoluteDestination string, overwrite bool) error {
	f.moves = append(f.moves, fakeMove{source: sourcePath, dest: absoluteDestination, overwrite: overwrite})
	if err, ok := f.moveErr[sourcePath]; ok {
		return err
	}
	return nil
}

func (f *fakeTransport) Get(ctx context.Context, path string) (string, string, error) {
	f.gets = append(f.gets, path)
	if err, ok := f.getErr[path]; ok {
		return "", "", err
	}
	return f.getEtag[path], f.getBody[path], nil
}

func (f *fakeTransport) ListResources(ctx context.Context, calendarPath string) (map[string]string, error) {
	f.lists = append(f.lists, calendarPath)
	if err, ok := f.listErr[calendarPath]; ok {
		return nil, err
	}
	return f.listing[calendarPath], nil
}

func (f *fakeTransport) CollectionToken(ctx context.Context, calendarPath string) (string, error) {
	if err, ok := f.tokenErr[calendarPath]; ok {
		return "", err
	}
	return f.token[calendarPath], nil
}
