package controller

import (
	"personal-knowledge-be/internal/dto"
	"personal-knowledge-be/internal/pkg/serverutils"
	"personal-knowledge-be/internal/service"
	"personal-knowledge-be/pkg/retrieval"

	"github.com/gofiber/fiber/v2"
)

type ILibraryController interface {
	RegisterRoutes(r fiber.Router)
	Rescan(ctx *fiber.Ctx) error
	Status(ctx *fiber.Ctx) error
}

type libraryController struct {
	libraryService service.ILibraryService
	chunkStore     retrieval.ChunkStore
}

func NewLibraryController(libraryService service.ILibraryService, chunkStore retrieval.ChunkStore) ILibraryController {
	return &libraryController{
		libraryService: libraryService,
		chunkStore:     chunkStore,
	}
}

func (c *libraryController) RegisterRoutes(r fiber.Router) {
	v1 := r.Group("/v1/index")
	v1.Post("/rescan", c.Rescan)
	v1.Get("/status", c.Status)
}

func (c *libraryController) Rescan(ctx *fiber.Ctx) error {
	published, err := c.libraryService.PublishAll(ctx.UserContext())
	if err != nil {
		return err
	}
	return ctx.Status(fiber.StatusAccepted).JSON(serverutils.SuccessResponse("Rescan started", dto.IndexStatusResponse{
		Documents: published,
	}))
}

func (c *libraryController) Status(ctx *fiber.Ctx) error {
	chunks, err := c.chunkStore.Count(ctx.UserContext())
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Index status", dto.IndexStatusResponse{
		Chunks: chunks,
	}))
}
