package server

import (
	"html/template"
	"net/http"
)

var formTemplate = template.Must(template.New("form").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>coverdl</title>
<style>
body { font-family: sans-serif; max-width: 40rem; margin: 2rem auto; }
label { display: block; margin-top: 0.75rem; }
input[type=text], textarea { width: 100%; }
</style>
</head>
<body>
<h1>Cover download</h1>
<form method="post" action="/runs" enctype="multipart/form-data">
<label>Table (.xlsx or .csv) <input type="file" name="table" required></label>
<label>Identifier column <input type="text" name="identifier_column" value="{{.IdentifierColumn}}"></label>
<label>Link column <input type="text" name="link_column" value="{{.LinkColumn}}"></label>
<input type="hidden" name="convert_webp" value="off">
<label><input type="checkbox" name="convert_webp"{{if .ConvertWebP}} checked{{end}}> Convert WebP to PNG</label>
<input type="hidden" name="handle_transparency" value="off">
<label><input type="checkbox" name="handle_transparency"{{if .HandleTransparency}} checked{{end}}> Flatten transparency onto white</label>
<input type="hidden" name="overwrite" value="off">
<label><input type="checkbox" name="overwrite"{{if .Overwrite}} checked{{end}}> Overwrite duplicates in the archive</label>
<label>Delay between downloads (seconds) <input type="text" name="delay_seconds" value="{{printf "%g" .Delay.Seconds}}"></label>
<label>Only these identifiers (one per line, optional) <textarea name="allowlist" rows="4"></textarea></label>
<p><button type="submit">Start run</button></p>
</form>
</body>
</html>
`))

func (s *Server) handleForm(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := formTemplate.Execute(w, s.defaults); err != nil {
		s.logger.Printf("render form failed err=%v", err)
	}
}
