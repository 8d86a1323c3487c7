/**
 * @description
 * This file contains the HTTP handlers for the streaming import endpoints.
 * Both accept a batch of pass records (JSON body or multipart spreadsheet),
 * start the ingestion pipeline, and stream its typed lifecycle events to the
 * caller over Server-Sent Events. The response stays open until the pipeline
 * emits its terminal event or the client goes away.
 *
 * @dependencies
 * - internal/app: Ingestion pipeline.
 * - pkg/spreadsheet: xlsx batch parsing.
 */

package api

import (
	"net/http"

	"github.com/campuspass/pass-service/internal/domain"
	"github.com/campuspass/pass-service/pkg/spreadsheet"
)

// maxImportUploadBytes bounds the multipart memory footprint of spreadsheet
// uploads.
const maxImportUploadBytes = 32 << 20

type importRequest struct {
	Records []domain.NewPass `json:"records"`
}

// ImportPassesHandler ingests a JSON batch and streams progress events.
func (h *PassHandlers) ImportPassesHandler(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.streamIngestion(w, r, req.Records)
}

// ImportSpreadsheetHandler ingests an uploaded xlsx batch and streams
// progress events. The file is expected under the "file" form field.
func (h *PassHandlers) ImportSpreadsheetHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxImportUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart upload: "+err.Error())
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	records, err := spreadsheet.ReadPassBatch(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to parse spreadsheet: "+err.Error())
		return
	}
	h.streamIngestion(w, r, records)
}

// streamIngestion runs the pipeline and relays its events as SSE frames.
// Write failures stop relaying but not the pipeline; it drains to its
// terminal event so already-dispatched chunks still finish and get recorded.
func (h *PassHandlers) streamIngestion(w http.ResponseWriter, r *http.Request, records []domain.NewPass) {
	stream, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	events := h.service.IngestPasses(r.Context(), records, h.eventBuffer)
	clientGone := false
	for event := range events {
		if clientGone {
			continue
		}
		if err := stream.send(event); err != nil {
			h.logger.Warn("client dropped during import stream", "err", err)
			clientGone = true
		}
	}
}
