package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetchTodoListItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><title>x</title></head><body>
			<nav><ul><li>Home</li></ul></nav>
			<h1>Today</h1>
			<ul><li>Fix <b>login</b> bug</li><li>  Write   docs </li><li></li></ul>
			<script>var x = 1;</script>
		</body></html>`))
	}))
	defer srv.Close()

	got, err := FetchTodo(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("FetchTodo: %v", err)
	}
	if want := "Fix login bug\nWrite docs"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestFetchTodoBlockText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><p>Call the bank</p><div>Pay rent</div></body></html>`))
	}))
	defer srv.Close()

	got, err := FetchTodo(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("FetchTodo: %v", err)
	}
	if want := "Call the bank\nPay rent"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestFetchTodoPlainText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("- one\n\n- two\n"))
	}))
	defer srv.Close()

	got, err := FetchTodo(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("FetchTodo: %v", err)
	}
	if want := "- one\n- two"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestFetchTodoErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	if _, err := FetchTodo(context.Background(), srv.URL); err == nil {
		t.Fatal("expected error for 404")
	}
	if _, err := FetchTodo(context.Background(), "ftp://example.com/list"); err == nil {
		t.Fatal("expected error for unsupported scheme")
	}
}

func TestIsURL(t *testing.T) {
	if !IsURL("https://example.com") || !IsURL(" www.example.com") || IsURL("buy milk") {
		t.Fatal("IsURL misclassified input")
	}
}
