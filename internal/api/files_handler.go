package api

import (
	"encoding/json"
	"mime"
	"net/http"
	"time"

	"craftdeck/internal/tasks"
	"craftdeck/pkg/sdk"
	"craftdeck/pkg/sdk/events"
)

const maxUploadMemory = 32 << 20

func writeDone(w http.ResponseWriter, info *sdk.FileInfo) {
	writeJSON(w, http.StatusOK, sdk.FileOperationResult{Result: events.ResultSuccess, File: info})
}

func writePending(w http.ResponseWriter, taskID int) {
	writeJSON(w, http.StatusOK, sdk.FileOperationResult{Result: events.ResultPending, TaskID: &taskID})
}

// startTask hands work to the task engine and answers with its id.
func (api *Server) startTask(w http.ResponseWriter, spec tasks.Spec, work tasks.Work, err error) {
	if err != nil {
		api.writeError(w, err)
		return
	}
	writePending(w, api.Tasks.Start(spec, work))
}

func (api *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	listing, err := api.Manager.ListFiles(r.PathValue("id"), r.URL.Query().Get("path"))
	if err != nil {
		api.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func (api *Server) handleFileInfo(w http.ResponseWriter, r *http.Request) {
	info, err := api.Manager.Stat(r.PathValue("id"), r.URL.Query().Get("path"))
	if err != nil {
		api.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (api *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	f, info, err := api.Manager.Open(r.PathValue("id"), r.URL.Query().Get("path"))
	if err != nil {
		api.writeError(w, err)
		return
	}
	defer f.Close()

	modTime := time.Time{}
	if st, err := f.Stat(); err == nil {
		modTime = st.ModTime()
	}
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": info.Name}))
	http.ServeContent(w, r, info.Name, modTime, f)
}

func (api *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	info, err := api.Manager.UploadFile(r.PathValue("id"), r.URL.Query().Get("path"), file)
	if err != nil {
		api.writeError(w, err)
		return
	}
	writeDone(w, &info)
}

func (api *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	id, p := r.PathValue("id"), r.URL.Query().Get("path")
	work, err := api.Manager.Remove(id, p)
	api.startTask(w, tasks.Spec{Type: events.FileEventDelete, Server: id, Src: p}, work, err)
}

func (api *Server) handleCopy(w http.ResponseWriter, r *http.Request) {
	id, q := r.PathValue("id"), r.URL.Query()
	src, dst := q.Get("path"), q.Get("dst_path")
	work, err := api.Manager.Copy(id, src, dst)
	api.startTask(w, tasks.Spec{Type: events.FileEventCopy, Server: id, Src: src, Dst: dst}, work, err)
}

func (api *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	info, err := api.Manager.Move(r.PathValue("id"), q.Get("path"), q.Get("dst_path"))
	if err != nil {
		api.writeError(w, err)
		return
	}
	writeDone(w, &info)
}

func (api *Server) handleMkdir(w http.ResponseWriter, r *http.Request) {
	info, err := api.Manager.CreateDirectory(r.PathValue("id"), r.URL.Query().Get("path"), queryBool(r, "parents"))
	if err != nil {
		api.writeError(w, err)
		return
	}
	writeDone(w, &info)
}

func (api *Server) handleMakeArchive(w http.ResponseWriter, r *http.Request) {
	id, q := r.PathValue("id"), r.URL.Query()
	dst := q.Get("path")
	work, err := api.Manager.MakeArchive(id, dst, q.Get("files_root"), q["include_files"])
	api.startTask(w, tasks.Spec{Type: events.FileEventCreateArchive, Server: id, Src: q.Get("files_root"), Dst: dst}, work, err)
}

func (api *Server) handleExtractArchive(w http.ResponseWriter, r *http.Request) {
	id, q := r.PathValue("id"), r.URL.Query()

	var body struct {
		Password *string `json:"password"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid JSON", http.StatusBadRequest)
			return
		}
	}
	password := ""
	if body.Password != nil {
		password = *body.Password
	}

	src, dst := q.Get("path"), q.Get("output_dir")
	work, err := api.Manager.ExtractArchive(id, src, dst, password)
	api.startTask(w, tasks.Spec{Type: events.FileEventExtractArchive, Server: id, Src: src, Dst: dst}, work, err)
}

func (api *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.Tasks.List())
}

func (api *Server) handleStorageInfo(w http.ResponseWriter, r *http.Request) {
	info, err := api.Manager.StorageInfo(r.URL.Query().Get("server_id"))
	if err != nil {
		api.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}
