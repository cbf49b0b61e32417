package http_handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/anthanhphan/go-kademlia-dht/internal/node/domain"
	"github.com/anthanhphan/go-kademlia-dht/internal/node/port"
	"github.com/anthanhphan/go-kademlia-dht/pkg/routing"
	sdklogger "github.com/anthanhphan/gosdk/logger"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

type Server struct {
	app     *fiber.App
	addr    string
	service port.NodeService
}

// setRequest is the body of PUT /v1/values/:key.
type setRequest struct {
	Name  string       `json:"name"`
	Value domain.Value `json:"value"`
	Hash  bool         `json:"hash"`
}

type valueResponse struct {
	Key   string       `json:"key"`
	Value domain.Value `json:"value"`
}

func NewServer(addr string, service port.NodeService) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New())

	s := &Server{
		app:     app,
		addr:    addr,
		service: service,
	}

	// Routes
	s.registerRoutes()

	return s
}

func (s *Server) registerRoutes() {
	v1 := s.app.Group("/v1")
	v1.Get("/values/:key", s.handleGet)
	v1.Put("/values/:key", s.handleSet)
	v1.Delete("/values/:key", s.handleDelete)
	v1.Delete("/tags/:tag/:content_id", s.handleDeleteTag)
	v1.Get("/neighbors", s.handleNeighbors)
}

// App exposes the fiber app, mainly for in-process tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Start() error {
	return s.app.Listen(s.addr)
}

func (s *Server) Stop(ctx context.Context) error {
	return s.app.Shutdown()
}

func (s *Server) sendJSONError(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": message,
	})
}

// statusFor maps service errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, port.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, port.ErrNoNeighbors), errors.Is(err, port.ErrNoAck):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, domain.ErrRecordTooLarge):
		return fiber.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrInvalidValueType), errors.Is(err, domain.ErrInvalidKey):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

// hashParam reads ?hash=, defaulting to true.
func hashParam(c *fiber.Ctx) (bool, error) {
	raw := c.Query("hash")
	if raw == "" {
		return true, nil
	}
	return strconv.ParseBool(raw)
}

func (s *Server) handleGet(c *fiber.Ctx) error {
	key := c.Params("key")
	hash, err := hashParam(c)
	if err != nil {
		return s.sendJSONError(c, fiber.StatusBadRequest, "Invalid 'hash' query parameter")
	}

	// Raw keys travel as hex ids.
	keyBytes := []byte(key)
	if !hash {
		id, err := routing.ParseNodeID(key)
		if err != nil {
			return s.sendJSONError(c, fiber.StatusBadRequest, "Key must be a hex id when hash=false")
		}
		keyBytes = id.Bytes()
	}

	v, err := s.service.Get(c.UserContext(), keyBytes, hash)
	if err != nil {
		status := statusFor(err)
		if status == fiber.StatusInternalServerError {
			sdklogger.Errorw("Get failed", "key", key, "error", err.Error())
		}
		return s.sendJSONError(c, status, fmt.Sprintf("Get failed: %v", err))
	}

	return c.JSON(valueResponse{Key: key, Value: v})
}

func (s *Server) handleSet(c *fiber.Ctx) error {
	key := c.Params("key")

	var req setRequest
	if err := c.BodyParser(&req); err != nil {
		return s.sendJSONError(c, fiber.StatusBadRequest, fmt.Sprintf("Invalid body: %v", err))
	}

	if err := s.service.Set(c.UserContext(), []byte(key), req.Name, req.Value, req.Hash); err != nil {
		status := statusFor(err)
		if status == fiber.StatusInternalServerError {
			sdklogger.Errorw("Set failed", "key", key, "error", err.Error())
		}
		return s.sendJSONError(c, status, fmt.Sprintf("Set failed: %v", err))
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"key":        key,
		"content_id": contentIDFor(req),
	})
}

// contentIDFor returns the content id a hashed set creates, or "".
func contentIDFor(req setRequest) string {
	if !req.Hash {
		return ""
	}
	return req.Value.ContentID().String()
}

func (s *Server) handleDelete(c *fiber.Ctx) error {
	key := c.Params("key")
	hash, err := hashParam(c)
	if err != nil {
		return s.sendJSONError(c, fiber.StatusBadRequest, "Invalid 'hash' query parameter")
	}

	keyBytes := []byte(key)
	if !hash {
		id, err := routing.ParseNodeID(key)
		if err != nil {
			return s.sendJSONError(c, fiber.StatusBadRequest, "Key must be a hex id when hash=false")
		}
		keyBytes = id.Bytes()
	}

	if err := s.service.Delete(c.UserContext(), keyBytes, hash); err != nil {
		return s.sendJSONError(c, statusFor(err), fmt.Sprintf("Delete failed: %v", err))
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleDeleteTag(c *fiber.Ctx) error {
	tag := c.Params("tag")
	contentID, err := routing.ParseNodeID(c.Params("content_id"))
	if err != nil {
		return s.sendJSONError(c, fiber.StatusBadRequest, "Invalid content id")
	}

	if err := s.service.DeleteTag(c.UserContext(), []byte(tag), contentID); err != nil {
		return s.sendJSONError(c, statusFor(err), fmt.Sprintf("Delete tag failed: %v", err))
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleNeighbors(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"neighbors": s.service.BootstrappableNeighbors(),
	})
}
