package server

import (
	"bytes"
	"io"
	"net/http"
	"path"
	"strings"
)

// liveReloadScript connects to the reload endpoint and reacts to pushed
// messages. It reconnects after the server restarts.
const liveReloadScript = `<script>(function(){
var proto = location.protocol === "https:" ? "wss://" : "ws://";
function refreshCSS(target) {
  var links = document.querySelectorAll('link[rel="stylesheet"]');
  for (var i = 0; i < links.length; i++) {
    var url = new URL(links[i].href, location.href);
    if (url.pathname === target) {
      url.searchParams.set("livereload", Date.now());
      links[i].href = url.toString();
    }
  }
}
function connect() {
  var ws = new WebSocket(proto + location.host + "` + liveReloadPath + `");
  ws.onmessage = function(e) {
    var msg = JSON.parse(e.data);
    if (msg.type === "css") { refreshCSS(msg.target); }
    else if (msg.type === "reload") { location.reload(); }
    else if (msg.type === "build_error") { console.error("[assetline] " + msg.content); }
  };
  ws.onclose = function() { setTimeout(connect, 1000); };
}
connect();
})();</script>`

// staticHandler serves the output tree and injects the live-reload client
// into HTML documents.
type staticHandler struct {
	root  http.FileSystem
	files http.Handler
}

func newStaticHandler(root string) http.Handler {
	fs := http.Dir(root)
	return &staticHandler{root: fs, files: http.FileServer(fs)}
}

func (h *staticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := path.Clean("/" + r.URL.Path)
	if strings.HasSuffix(r.URL.Path, "/") {
		name = path.Join(name, "index.html")
	}
	if path.Ext(name) != ".html" {
		h.files.ServeHTTP(w, r)
		return
	}

	f, err := h.root.Open(name)
	if err != nil {
		h.files.ServeHTTP(w, r)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		h.files.ServeHTTP(w, r)
		return
	}
	content, err := io.ReadAll(f)
	if err != nil {
		http.Error(w, "Failed to read file", http.StatusInternalServerError)
		return
	}

	page := injectScript(content)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	http.ServeContent(w, r, name, info.ModTime(), bytes.NewReader(page))
}

// injectScript places the live-reload client before the last </body>, or at
// the end when the document has none.
func injectScript(page []byte) []byte {
	idx := lastIndexFold(page, []byte("</body>"))
	if idx < 0 {
		return append(append([]byte{}, page...), liveReloadScript...)
	}
	out := make([]byte, 0, len(page)+len(liveReloadScript))
	out = append(out, page[:idx]...)
	out = append(out, liveReloadScript...)
	return append(out, page[idx:]...)
}

func lastIndexFold(s, sep []byte) int {
	for i := len(s) - len(sep); i >= 0; i-- {
		if bytes.EqualFold(s[i:i+len(sep)], sep) {
			return i
		}
	}
	return -1
}
