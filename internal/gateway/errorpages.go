package gateway

import "net/http"

// startingPage is served while a workspace machine is being provisioned or
// restarted; the meta refresh is the client-side retry loop.
const startingPage = `<!DOCTYPE html>
<html>
<head>
<meta http-equiv="refresh" content="3">
<title>Starting workspace</title>
<style>
body { font-family: system-ui, sans-serif; display: flex; align-items: center; justify-content: center; height: 100vh; margin: 0; color: #333; }
.box { text-align: center; }
.spinner { margin: 0 auto 1rem; width: 2rem; height: 2rem; border: 3px solid #ddd; border-top-color: #555; border-radius: 50%; animation: spin 1s linear infinite; }
@keyframes spin { to { transform: rotate(360deg); } }
</style>
</head>
<body>
<div class="box">
<div class="spinner"></div>
<p>Starting your workspace&hellip;</p>
<p>This page reloads automatically.</p>
</div>
</body>
</html>`

const invalidSubdomainPage = `<!DOCTYPE html>
<html>
<head><title>Not found</title></head>
<body>
<h1>Not a valid workspace subdomain</h1>
<p>Workspace addresses look like <code>&lt;user&gt;--&lt;repo&gt;.&lt;domain&gt;</code>.</p>
</body>
</html>`

func writeStartingPage(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusBadGateway)
	_, _ = w.Write([]byte(startingPage))
}

func writeInvalidSubdomainPage(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte(invalidSubdomainPage))
}
