package api

import (
	"net/http"

	"github.com/tecnokaijin/storefront/internal/models"
)

// ListProductsHandler handles GET /api/products
func (a *App) ListProductsHandler(w http.ResponseWriter, r *http.Request) {
	filter, err := models.ParseProductFilter(r.URL.Query())
	if err != nil {
		a.handleError(w, r, err)
		return
	}

	products, err := a.productService.ListProducts(r.Context(), filter)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, products)
}

// GetProductHandler handles GET /api/products/{id}
func (a *App) GetProductHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "product")
	if !ok {
		return
	}

	product, err := a.productService.GetProduct(r.Context(), id)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, product)
}

// CreateProductHandler handles POST /api/products
func (a *App) CreateProductHandler(w http.ResponseWriter, r *http.Request) {
	var req models.ProductInput
	if !decodeJSON(w, r, &req) {
		return
	}

	product, err := a.productService.CreateProduct(r.Context(), req)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, product)
}

// UpdateProductHandler handles PUT /api/products/{id}
func (a *App) UpdateProductHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "product")
	if !ok {
		return
	}
	var req models.ProductPatch
	if !decodeJSON(w, r, &req) {
		return
	}

	product, err := a.productService.UpdateProduct(r.Context(), id, req)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, product)
}

// DeleteProductHandler handles DELETE /api/products/{id}
func (a *App) DeleteProductHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "product")
	if !ok {
		return
	}

	if err := a.productService.DeleteProduct(r.Context(), id); err != nil {
		a.handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "product deleted"})
}
