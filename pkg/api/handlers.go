package api

import (
	"bufio"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/marmos91/assetfiles/pkg/audit"
	"github.com/marmos91/assetfiles/pkg/catalog"
	"github.com/marmos91/assetfiles/pkg/events"
	"github.com/marmos91/assetfiles/pkg/fileops"
)

func (d *Dispatcher) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (d *Dispatcher) notFound(c *gin.Context) {
	abortWithCode(c, ErrorCodeNotFound, "route not found")
}

// list answers 204 when the root cannot be enumerated.
func (d *Dispatcher) list(c *gin.Context) {
	records, err := d.ops.List()
	if err != nil {
		requestLogger(c).Warn("Cannot list managed root: %v", err)
		c.Status(http.StatusNoContent)
		return
	}
	catalog.SortNewestFirst(records)
	c.JSON(http.StatusOK, records)
}

func (d *Dispatcher) get(c *gin.Context) {
	record, err := d.ops.Get(c.Param("name"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (d *Dispatcher) create(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		abortWithCode(c, ErrorCodeInvalidRequest, "invalid multipart body: "+err.Error())
		return
	}

	uploads := uploadsFromForm(form)
	records := d.ops.CreateMany(uploads)
	catalog.SortNewestFirst(records)

	var written uint64
	for _, r := range records {
		written += r.Size
	}
	d.metrics.RecordBytesUploaded(written)

	d.afterMutation(c, audit.OpCreate, len(uploads), recordNames(records), nil)
	c.JSON(http.StatusOK, records)
}

// uploadsFromForm returns the file parts of every form field, fields in
// name order and parts in request order.
func uploadsFromForm(form *multipart.Form) []fileops.Upload {
	fields := make([]string, 0, len(form.File))
	for field := range form.File {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var uploads []fileops.Upload
	for _, field := range fields {
		for _, fh := range form.File[field] {
			fh := fh
			uploads = append(uploads, fileops.Upload{
				Filename: fh.Filename,
				Open: func() (io.ReadCloser, error) {
					return fh.Open()
				},
			})
		}
	}
	return uploads
}

func (d *Dispatcher) renameMany(c *gin.Context) {
	var renames []fileops.Rename
	if err := c.ShouldBindJSON(&renames); err != nil {
		abortWithCode(c, ErrorCodeInvalidRequest, "invalid rename batch: "+err.Error())
		return
	}

	records := d.ops.RenameMany(renames)
	d.afterMutation(c, audit.OpRename, len(renames), recordNames(records), nil)
	c.JSON(http.StatusOK, records)
}

func (d *Dispatcher) renameOne(c *gin.Context) {
	var rename fileops.Rename
	if err := c.ShouldBindJSON(&rename); err != nil {
		abortWithCode(c, ErrorCodeInvalidRequest, "invalid rename: "+err.Error())
		return
	}

	record, err := d.ops.RenameOne(rename)
	if err != nil {
		d.afterMutation(c, audit.OpRename, 1, nil, nil)
		abortWithError(c, err)
		return
	}

	d.afterMutation(c, audit.OpRename, 1, []string{record.Name}, []string{rename.From})
	c.JSON(http.StatusOK, record)
}

func (d *Dispatcher) deleteMany(c *gin.Context) {
	var names []string
	if err := c.ShouldBindJSON(&names); err != nil {
		abortWithCode(c, ErrorCodeInvalidRequest, "invalid delete batch: "+err.Error())
		return
	}

	deleted := d.ops.DeleteMany(names)
	d.afterMutation(c, audit.OpDelete, len(names), deleted, nil)
	c.JSON(http.StatusOK, deleted)
}

func (d *Dispatcher) deleteOne(c *gin.Context) {
	name, err := d.ops.DeleteOne(c.Param("name"))
	if err != nil {
		d.afterMutation(c, audit.OpDelete, 1, nil, nil)
		abortWithError(c, err)
		return
	}

	d.afterMutation(c, audit.OpDelete, 1, []string{name}, nil)
	c.Status(http.StatusNoContent)
}

func (d *Dispatcher) streamEvents(c *gin.Context) {
	w := &hijackWriter{ResponseWriter: c.Writer}
	d.events.ServeWS(w, c.Request)
	if w.hijacked {
		c.Set(contextKeyHijacked, true)
	}
	d.metrics.SetEventSubscribers(d.events.Subscribers())
}

// hijackWriter remembers a successful upgrade. gin keeps reporting 200 for
// hijacked connections.
type hijackWriter struct {
	gin.ResponseWriter
	hijacked bool
}

func (w *hijackWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	conn, rw, err := w.ResponseWriter.Hijack()
	if err == nil {
		w.hijacked = true
	}
	return conn, rw, err
}

func (d *Dispatcher) recentAudit(c *gin.Context) {
	limit := audit.DefaultRecentLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			abortWithCode(c, ErrorCodeInvalidRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := d.audit.Recent(c.Request.Context(), limit)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	c.JSON(http.StatusOK, entries)
}

// serveStatic serves a regular file of the managed root.
func (d *Dispatcher) serveStatic(c *gin.Context) {
	if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
		d.notFound(c)
		return
	}

	name := strings.TrimPrefix(c.Request.URL.Path, "/")
	if name == "" {
		d.notFound(c)
		return
	}

	path, err := d.ops.Resolve(name)
	if err != nil {
		d.notFound(c)
		return
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		d.notFound(c)
		return
	}
	c.File(path)
}

// afterMutation feeds the side channels of a mutating request: batch
// metrics, the audit trail and the event hub. None of them can fail the
// request.
func (d *Dispatcher) afterMutation(c *gin.Context, op string, requested int, targets, from []string) {
	d.metrics.RecordBatch(op, requested, len(targets))

	identity := Identity(c)

	if d.audit != nil {
		entry := audit.Entry{
			Identity:  identity,
			Operation: op,
			RequestID: RequestID(c),
			Requested: requested,
			Succeeded: len(targets),
			Targets:   targets,
		}
		if err := d.audit.Append(c.Request.Context(), entry); err != nil {
			requestLogger(c).Warn("Failed to record audit entry: %v", err)
		}
	}

	if d.events != nil && len(targets) > 0 {
		d.events.Publish(events.Event{
			Type:     eventTypes[op],
			Identity: identity,
			Names:    targets,
			From:     from,
		})
		d.metrics.SetEventSubscribers(d.events.Subscribers())
	}
}

var eventTypes = map[string]string{
	audit.OpCreate: events.TypeCreated,
	audit.OpRename: events.TypeRenamed,
	audit.OpDelete: events.TypeDeleted,
}

func recordNames(records []catalog.Record) []string {
	names := make([]string, len(records))
	for i, r := range records {
		names[i] = r.Name
	}
	return names
}
