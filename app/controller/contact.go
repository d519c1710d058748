package controller

import (
	"errors"
	"net/http"

	httpdto "github.com/vibast-solutions/ms-go-phonebook/app/dto/http"
	"github.com/vibast-solutions/ms-go-phonebook/app/entity"
	"github.com/vibast-solutions/ms-go-phonebook/app/middleware"
	"github.com/vibast-solutions/ms-go-phonebook/app/service"
	"github.com/vibast-solutions/ms-go-phonebook/app/types"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

type ContactController struct {
	contactService service.ContactService
	phoneRegion    string
}

func NewContactController(contactService service.ContactService, phoneRegion string) *ContactController {
	return &ContactController{contactService: contactService, phoneRegion: phoneRegion}
}

func (c *ContactController) List(ctx echo.Context) error {
	user := middleware.CurrentUser(ctx)
	if user == nil {
		return ctx.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: "not authenticated"})
	}

	req, err := types.NewListContactsRequestFromContext(ctx)
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid query parameters"})
	}
	if err = req.Validate(); err != nil {
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
	}

	contacts, err := c.contactService.List(ctx.Request().Context(), user.ID, req)
	if err != nil {
		return c.internalError(ctx, err, user, "List contacts failed")
	}
	return ctx.JSON(http.StatusOK, types.NewContactListResponse(contacts))
}

func (c *ContactController) Get(ctx echo.Context) error {
	user := middleware.CurrentUser(ctx)
	if user == nil {
		return ctx.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: "not authenticated"})
	}

	id, err := types.ContactIDFromContext(ctx)
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
	}

	contact, err := c.contactService.Get(ctx.Request().Context(), user.ID, id)
	if err != nil {
		return c.contactError(ctx, err, user, id, "Get contact failed")
	}
	return ctx.JSON(http.StatusOK, types.NewContactResponse(contact))
}

func (c *ContactController) Create(ctx echo.Context) error {
	user := middleware.CurrentUser(ctx)
	if user == nil {
		return ctx.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: "not authenticated"})
	}

	req, err := types.NewContactRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind contact request")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid request body"})
	}
	if err = req.Validate(c.phoneRegion); err != nil {
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
	}

	contact, err := c.contactService.Create(ctx.Request().Context(), user.ID, req)
	if err != nil {
		return c.contactError(ctx, err, user, 0, "Create contact failed")
	}

	logrus.WithFields(logrus.Fields{
		"user_id":    user.ID,
		"contact_id": contact.ID,
	}).Info("Contact created")
	return ctx.JSON(http.StatusCreated, types.NewContactResponse(contact))
}

func (c *ContactController) Update(ctx echo.Context) error {
	user := middleware.CurrentUser(ctx)
	if user == nil {
		return ctx.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: "not authenticated"})
	}

	id, err := types.ContactIDFromContext(ctx)
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
	}

	req, err := types.NewContactRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind contact request")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid request body"})
	}
	if err = req.Validate(c.phoneRegion); err != nil {
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
	}

	contact, err := c.contactService.Update(ctx.Request().Context(), user.ID, id, req)
	if err != nil {
		return c.contactError(ctx, err, user, id, "Update contact failed")
	}

	logrus.WithFields(logrus.Fields{
		"user_id":    user.ID,
		"contact_id": id,
	}).Info("Contact updated")
	return ctx.JSON(http.StatusOK, types.NewContactResponse(contact))
}

func (c *ContactController) SetFavorite(ctx echo.Context) error {
	user := middleware.CurrentUser(ctx)
	if user == nil {
		return ctx.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: "not authenticated"})
	}

	id, err := types.ContactIDFromContext(ctx)
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
	}

	req, err := types.NewFavoriteRequestFromContext(ctx)
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid request body"})
	}

	contact, err := c.contactService.SetFavorite(ctx.Request().Context(), user.ID, id, req)
	if err != nil {
		return c.contactError(ctx, err, user, id, "Set favorite failed")
	}
	return ctx.JSON(http.StatusOK, types.NewContactResponse(contact))
}

func (c *ContactController) Delete(ctx echo.Context) error {
	user := middleware.CurrentUser(ctx)
	if user == nil {
		return ctx.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: "not authenticated"})
	}

	id, err := types.ContactIDFromContext(ctx)
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
	}

	contact, err := c.contactService.Delete(ctx.Request().Context(), user.ID, id)
	if err != nil {
		return c.contactError(ctx, err, user, id, "Delete contact failed")
	}

	logrus.WithFields(logrus.Fields{
		"user_id":    user.ID,
		"contact_id": id,
	}).Info("Contact deleted")
	return ctx.JSON(http.StatusOK, types.NewContactResponse(contact))
}

func (c *ContactController) Search(ctx echo.Context) error {
	user := middleware.CurrentUser(ctx)
	if user == nil {
		return ctx.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: "not authenticated"})
	}

	req, err := types.NewSearchContactsRequestFromContext(ctx)
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid query parameters"})
	}
	if err = req.Validate(); err != nil {
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
	}

	contacts, err := c.contactService.Search(ctx.Request().Context(), user.ID, req)
	if err != nil {
		return c.internalError(ctx, err, user, "Search contacts failed")
	}
	return ctx.JSON(http.StatusOK, types.NewContactListResponse(contacts))
}

func (c *ContactController) Birthdays(ctx echo.Context) error {
	user := middleware.CurrentUser(ctx)
	if user == nil {
		return ctx.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: "not authenticated"})
	}

	req, err := types.NewBirthdaysRequestFromContext(ctx)
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid query parameters"})
	}
	if err = req.Validate(); err != nil {
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
	}

	contacts, err := c.contactService.Birthdays(ctx.Request().Context(), user.ID, req)
	if err != nil {
		return c.internalError(ctx, err, user, "Upcoming birthdays failed")
	}
	return ctx.JSON(http.StatusOK, types.NewContactListResponse(contacts))
}

func (c *ContactController) contactError(ctx echo.Context, err error, user *entity.User, id uint64, msg string) error {
	switch {
	case errors.Is(err, service.ErrContactNotFound):
		logrus.WithFields(logrus.Fields{"user_id": user.ID, "contact_id": id}).Debug("Contact not found")
		return ctx.JSON(http.StatusNotFound, httpdto.ErrorResponse{Error: "contact not found"})
	case errors.Is(err, service.ErrContactExists):
		logrus.WithField("user_id", user.ID).Warn(msg + ": email already used")
		return ctx.JSON(http.StatusConflict, httpdto.ErrorResponse{Error: "contact with this email already exists"})
	}
	return c.internalError(ctx, err, user, msg)
}

func (c *ContactController) internalError(ctx echo.Context, err error, user *entity.User, msg string) error {
	logrus.WithError(err).WithField("user_id", user.ID).Error(msg)
	return ctx.JSON(http.StatusInternalServerError, httpdto.ErrorResponse{Error: "internal server error"})
}
