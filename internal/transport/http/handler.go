package httptransport

import (
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"log"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Abishekvarshan/youtube-downloader/internal/artifact"
	"github.com/Abishekvarshan/youtube-downloader/internal/entity"
	"github.com/Abishekvarshan/youtube-downloader/internal/service"
)

//go:embed templates/index.html
var templatesFS embed.FS

var indexTmpl = template.Must(template.ParseFS(templatesFS, "templates/index.html"))

type Handler struct {
	jobSvc *service.JobService
}

func NewHandler(jobSvc *service.JobService) *Handler {
	return &Handler{jobSvc: jobSvc}
}

type createJobDTO struct {
	URL string `json:"url"`
}

type createJobResp struct {
	ID string `json:"id"`
}

type legacyStartResp struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

type jobResp struct {
	ID        string            `json:"id"`
	URL       string            `json:"url"`
	Status    entity.JobStatus  `json:"status"`
	Progress  float64           `json:"progress"`
	Log       []entity.LogEntry `json:"log"`
	HasOutput bool              `json:"has_output"`
	Error     *entity.JobError  `json:"error,omitempty"`
	CreatedAt string            `json:"created_at"`
	UpdatedAt string            `json:"updated_at"`
}

func toJobResp(j entity.Job) jobResp {
	return jobResp{
		ID:        j.ID,
		URL:       j.URL,
		Status:    j.Status,
		Progress:  j.Progress,
		Log:       j.Log,
		HasOutput: j.Output != "",
		Error:     j.Error,
		CreatedAt: j.CreatedAt.Format(time.RFC3339),
		UpdatedAt: j.UpdatedAt.Format(time.RFC3339),
	}
}

// readURL accepts a JSON body or a form field named url.
func readURL(r *http.Request) (string, error) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		var dto createJobDTO
		if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
			return "", errors.New("invalid json")
		}
		return dto.URL, nil
	}
	if err := r.ParseForm(); err != nil {
		return "", errors.New("invalid form")
	}
	return r.PostForm.Get("url"), nil
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) (string, bool) {
	url, err := readURL(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return "", false
	}

	id, err := h.jobSvc.Submit(r.Context(), url)
	switch {
	case err == nil:
		return id, true
	case errors.Is(err, service.ErrURLRequired):
		writeErr(w, http.StatusBadRequest, "url is required")
	case errors.Is(err, service.ErrBusy):
		w.Header().Set("Retry-After", "5")
		writeErr(w, http.StatusServiceUnavailable, "too many downloads in progress, retry later")
	default:
		writeErr(w, http.StatusInternalServerError, "internal error")
	}
	return "", false
}

// CreateJob godoc
// @Summary Submit a download
// @Description Registers a queued job for the url and starts the download in the background.
// @Tags jobs
// @Accept json
// @Accept x-www-form-urlencoded
// @Produce json
// @Param request body createJobDTO true "media url"
// @Success 201 {object} createJobResp
// @Failure 400 {object} apiError
// @Failure 503 {object} apiError
// @Router /jobs [post]
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	id, ok := h.submit(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusCreated, createJobResp{ID: id})
}

// StartDownload godoc
// @Summary Submit a download (form)
// @Tags legacy
// @Accept x-www-form-urlencoded
// @Produce json
// @Param url formData string true "media url"
// @Success 200 {object} legacyStartResp
// @Failure 400 {object} apiError
// @Failure 503 {object} apiError
// @Router /start-download [post]
func (h *Handler) StartDownload(w http.ResponseWriter, r *http.Request) {
	id, ok := h.submit(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, legacyStartResp{Message: "started", ID: id})
}

// GetJob godoc
// @Summary Get job status
// @Tags jobs
// @Produce json
// @Param id path string true "job id"
// @Success 200 {object} jobResp
// @Failure 404 {object} apiError
// @Router /jobs/{id} [get]
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	h.writeJob(w, r, chi.URLParam(r, "id"))
}

// Progress godoc
// @Summary Get job status by query
// @Tags legacy
// @Produce json
// @Param id query string true "job id"
// @Success 200 {object} jobResp
// @Failure 404 {object} apiError
// @Router /progress [get]
func (h *Handler) Progress(w http.ResponseWriter, r *http.Request) {
	h.writeJob(w, r, r.URL.Query().Get("id"))
}

// unknown and malformed ids are both reported as not found
func (h *Handler) writeJob(w http.ResponseWriter, r *http.Request, id string) {
	j, err := h.jobSvc.GetJob(r.Context(), id)
	if err != nil {
		writeErr(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, toJobResp(j))
}

// GetJobFile godoc
// @Summary Download the artifact of a finished job
// @Tags jobs
// @Produce octet-stream
// @Param id path string true "job id"
// @Success 200 {file} binary
// @Failure 404 {object} apiError
// @Router /jobs/{id}/file [get]
func (h *Handler) GetJobFile(w http.ResponseWriter, r *http.Request) {
	h.writeFile(w, r, chi.URLParam(r, "id"))
}

// DownloadFile godoc
// @Summary Download the artifact by query
// @Tags legacy
// @Produce octet-stream
// @Param id query string true "job id"
// @Success 200 {file} binary
// @Failure 404 {object} apiError
// @Router /download-file [get]
func (h *Handler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	h.writeFile(w, r, r.URL.Query().Get("id"))
}

func (h *Handler) writeFile(w http.ResponseWriter, r *http.Request, id string) {
	j, obj, err := h.jobSvc.OpenArtifact(r.Context(), id)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrJobNotFound):
		writeErr(w, http.StatusNotFound, "job not found")
		return
	case errors.Is(err, service.ErrNoArtifact):
		writeErr(w, http.StatusNotFound, "file not found")
		return
	default:
		log.Printf("[http] job_id=%s open artifact error=%v", id, err)
		writeErr(w, http.StatusInternalServerError, "internal error")
		return
	}
	defer obj.Close()

	ct := obj.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Disposition",
		mime.FormatMediaType("attachment", map[string]string{"filename": artifact.DisplayName(j.ID, j.Output)}))
	if obj.Size >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	if !obj.ModTime.IsZero() {
		w.Header().Set("Last-Modified", obj.ModTime.UTC().Format(http.TimeFormat))
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, obj); err != nil {
		log.Printf("[http] job_id=%s stream artifact error=%v", id, err)
	}
}

func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTmpl.Execute(w, nil); err != nil {
		log.Printf("[http] render index error=%v", err)
	}
}

func Health(w http.ResponseWriter, r *http.Request) {
	_, _ = w.Write([]byte("ok"))
}

