package services

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/homefinder/apiserver/types"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateStruct runs the struct tags and reports every failing field.
// messages is keyed by "field.tag", falling back to "field".
func validateStruct(input any, messages map[string]string) []FieldError {
	err := validate.Struct(input)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []FieldError{{Message: err.Error()}}
	}

	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		msg, ok := messages[fe.Field()+"."+fe.Tag()]
		if !ok {
			msg, ok = messages[fe.Field()]
		}
		if !ok {
			msg = fmt.Sprintf("%s is invalid", fe.Field())
		}
		fields = append(fields, FieldError{Field: fe.Field(), Message: msg})
	}
	return fields
}

// ListingInput is the raw form input shared by create and edit.
type ListingInput struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description" validate:"required,max=200"`
	Category    string `json:"category" validate:"required,number"`
	Price       string `json:"price" validate:"required,number"`
	Rooms       string `json:"rooms" validate:"required,number"`
	Parking     string `json:"parking" validate:"required,number"`
	Bathrooms   string `json:"bathrooms" validate:"required,number"`
	Street      string `json:"street" validate:"max=60"`
	Lat         string `json:"lat" validate:"required,latitude"`
	Lng         string `json:"lng" validate:"omitempty,longitude"`
}

var listingMessages = map[string]string{
	"title":                "Listing title is required",
	"description.required": "Description cannot be empty",
	"description.max":      "Description is too long",
	"category":             "Select a category",
	"price":                "Select a price range",
	"rooms":                "Select the number of rooms",
	"parking":              "Select the number of parking spots",
	"bathrooms":            "Select the number of bathrooms",
	"street":               "Street address is too long",
	"lat":                  "Place the property on the map",
	"lng":                  "Place the property on the map",
}

func (in ListingInput) normalized() ListingInput {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Category = strings.TrimSpace(in.Category)
	in.Price = strings.TrimSpace(in.Price)
	in.Rooms = strings.TrimSpace(in.Rooms)
	in.Parking = strings.TrimSpace(in.Parking)
	in.Bathrooms = strings.TrimSpace(in.Bathrooms)
	in.Street = strings.TrimSpace(in.Street)
	in.Lat = strings.TrimSpace(in.Lat)
	in.Lng = strings.TrimSpace(in.Lng)
	return in
}

// ValidateListing checks every field of the input and converts it. All
// violations are reported together.
func ValidateListing(input ListingInput) (types.ListingFields, error) {
	in := input.normalized()
	violations := validateStruct(in, listingMessages)
	rejected := make(map[string]bool, len(violations))
	for _, v := range violations {
		rejected[v.Field] = true
	}

	var fields types.ListingFields
	fields.Title = in.Title
	fields.Description = in.Description
	fields.Street = in.Street

	ints := []struct {
		name  string
		raw   string
		value *int
	}{
		{"category", in.Category, &fields.CategoryID},
		{"price", in.Price, &fields.PriceBandID},
		{"rooms", in.Rooms, &fields.Rooms},
		{"parking", in.Parking, &fields.Parking},
		{"bathrooms", in.Bathrooms, &fields.Bathrooms},
	}
	for _, f := range ints {
		if rejected[f.name] {
			continue
		}
		n, err := strconv.Atoi(f.raw)
		if err != nil {
			violations = append(violations, FieldError{Field: f.name, Message: listingMessages[f.name]})
			continue
		}
		*f.value = n
	}

	if !rejected["lat"] {
		fields.Lat, _ = strconv.ParseFloat(in.Lat, 64)
	}
	if !rejected["lng"] && in.Lng != "" {
		fields.Lng, _ = strconv.ParseFloat(in.Lng, 64)
	}

	if len(violations) > 0 {
		return types.ListingFields{}, &ValidationError{Fields: violations}
	}
	return fields, nil
}

// MessageInput is the body of a message left on a listing.
type MessageInput struct {
	Body string `json:"body" validate:"min=10"`
}

var messageMessages = map[string]string{
	"body": "Message must be at least 10 characters long",
}

// RegisterInput is the sign-up form.
type RegisterInput struct {
	Name           string `json:"name" validate:"required"`
	Email          string `json:"email" validate:"required,email"`
	Password       string `json:"password" validate:"min=6"`
	RepeatPassword string `json:"repeat_password" validate:"eqfield=Password"`
}

var registerMessages = map[string]string{
	"name":            "Name cannot be empty",
	"email":           "That does not look like an email",
	"password":        "Password must be at least 6 characters",
	"repeat_password": "Passwords do not match",
}

// LoginInput is the sign-in form.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

var loginMessages = map[string]string{
	"email":    "Email is required",
	"password": "Password is required",
}

type emailInput struct {
	Email string `json:"email" validate:"required,email"`
}

type passwordInput struct {
	Password string `json:"password" validate:"min=6"`
}
