package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/urfave/cli/v2"

	"github.com/astei/voxelchunk/archive"
	"github.com/astei/voxelchunk/chunk"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:      "serve",
		Usage:     "serves the chunks of an archive over HTTP",
		ArgsUsage: "<archive>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Value:   ":8080",
				Usage:   "listen address",
				EnvVars: []string{"VOXELCHUNK_ADDR"},
			},
		},
		Action: func(c *cli.Context) error {
			if err := requireArgs(c, 1); err != nil {
				return err
			}
			log := contextLogger(c)
			chunks, err := archive.ReadFile(c.Args().Get(0))
			if err != nil {
				return err
			}

			srv := &http.Server{
				Addr:              c.String("addr"),
				Handler:           newRouter(newChunkServer(chunks, log)),
				ReadHeaderTimeout: 10 * time.Second,
			}
			return listenAndServe(c.Context, srv, log)
		},
	}
}

func listenAndServe(ctx context.Context, srv *http.Server, log *slog.Logger) error {
	errc := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", srv.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// chunkServer serves a read-only set of chunks. Chunks are immutable, so
// handlers share them without locking.
type chunkServer struct {
	chunks map[chunk.Position]*chunk.Chunk
	order  []chunk.Position
	log    *slog.Logger
}

func newChunkServer(chunks []*chunk.Chunk, log *slog.Logger) *chunkServer {
	sorted := append([]*chunk.Chunk(nil), chunks...)
	sortChunks(sorted)

	s := &chunkServer{
		chunks: make(map[chunk.Position]*chunk.Chunk, len(sorted)),
		log:    log,
	}
	for _, c := range sorted {
		s.chunks[c.Position()] = c
		s.order = append(s.order, c.Position())
	}
	return s
}

func newRouter(s *chunkServer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/chunks", func(r chi.Router) {
		r.Get("/", s.listChunks)
		r.Get("/{x}/{z}", s.getChunk)
		r.Get("/{x}/{z}/blocks/{bx}/{by}/{bz}", s.getBlock)
	})
	return r
}

func (s *chunkServer) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
		)
	})
}

type chunkSummary struct {
	X          int32  `json:"x"`
	Z          int32  `json:"z"`
	Biome      string `json:"biome"`
	LightLevel uint8  `json:"lightLevel"`
	NonAir     int    `json:"nonAir"`
	Sections   string `json:"sections"`
	LastUpdate int64  `json:"lastUpdate"`
}

func summarize(c *chunk.Chunk) chunkSummary {
	m := c.Metadata()
	pos := c.Position()
	return chunkSummary{
		X:          pos.X,
		Z:          pos.Z,
		Biome:      m.Biome,
		LightLevel: m.LightLevel,
		NonAir:     c.NonAirCount(),
		Sections:   sectionString(c),
		LastUpdate: m.LastUpdate,
	}
}

// listChunks handles GET /chunks.
func (s *chunkServer) listChunks(w http.ResponseWriter, r *http.Request) {
	out := make([]chunkSummary, 0, len(s.order))
	for _, pos := range s.order {
		out = append(out, summarize(s.chunks[pos]))
	}
	s.respondJSON(w, http.StatusOK, out)
}

// getChunk handles GET /chunks/{x}/{z}. With ?format=binary or ?format=rle it
// returns the encoded chunk instead of a JSON summary.
func (s *chunkServer) getChunk(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookup(w, r)
	if !ok {
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" || format == "json" {
		s.respondJSON(w, http.StatusOK, summarize(c))
		return
	}
	data, err := encodeChunk(c, format)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.log.Warn("writing chunk", "error", err)
	}
}

type blockResponse struct {
	X  int    `json:"x"`
	Y  int    `json:"y"`
	Z  int    `json:"z"`
	ID uint16 `json:"id"`
}

// getBlock handles GET /chunks/{x}/{z}/blocks/{bx}/{by}/{bz}.
func (s *chunkServer) getBlock(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var coords [3]int
	for i, name := range []string{"bx", "by", "bz"} {
		v, err := strconv.Atoi(chi.URLParam(r, name))
		if err != nil {
			s.respondError(w, http.StatusBadRequest, fmt.Sprintf("Invalid %s coordinate", name))
			return
		}
		coords[i] = v
	}

	id, err := c.Block(coords[0], coords[1], coords[2])
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, blockResponse{X: coords[0], Y: coords[1], Z: coords[2], ID: id})
}

func (s *chunkServer) lookup(w http.ResponseWriter, r *http.Request) (*chunk.Chunk, bool) {
	pos, err := parsePosition(chi.URLParam(r, "x"), chi.URLParam(r, "z"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	c, ok := s.chunks[pos]
	if !ok {
		s.respondError(w, http.StatusNotFound, fmt.Sprintf("chunk %v not found", pos))
		return nil, false
	}
	return c, true
}

func (s *chunkServer) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Warn("encoding response", "error", err)
	}
}

func (s *chunkServer) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
