package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// actionResult mirrors the pricescout action envelope.
type actionResult struct {
	Success bool            `json:"success"`
	Action  string          `json:"action"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// pageRef mirrors one entry of a pagination plan.
type pageRef struct {
	PageNumber   int    `json:"page_number"`
	URL          string `json:"url"`
	Scraped      bool   `json:"scraped"`
	ProductCount int    `json:"scraped_products"`
}

// apiClient calls the pricescout action endpoint.
type apiClient struct {
	baseURL string
	key     string
	http    *http.Client
}

// call posts payload to /api/v1/actions/{action}. Transport problems are
// returned as errors; failed actions come back in the result.
func (c *apiClient) call(ctx context.Context, action string, payload any) (*actionResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/actions/"+action, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.key != "" {
		req.Header.Set("X-API-Key", c.key)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	var res actionResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("parse response (HTTP %d): %w", resp.StatusCode, err)
	}
	return &res, nil
}

func main() {
	apiURL := strings.TrimRight(os.Getenv("PRICESCOUT_API_URL"), "/")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("PRICESCOUT_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "PRICESCOUT_API_KEY is required")
		os.Exit(1)
	}
	client := &apiClient{baseURL: apiURL, key: apiKey, http: &http.Client{Timeout: 30 * time.Minute}}

	s := server.NewMCPServer(
		"pricescout",
		"0.1.0",
		server.WithToolCapabilities(false),
	)

	s.AddTool(mcp.NewTool("scrape_merchant_info",
		mcp.WithDescription("Scrape a trovaprezzi.it merchant profile (contacts, rating, logo) and its product categories."),
		mcp.WithString("vendor_id",
			mcp.Required(),
			mcp.Description("Merchant slug as it appears in /negozi/{vendor_id}"),
		),
	), handleMerchantInfo(client))

	s.AddTool(mcp.NewTool("get_pagination_urls",
		mcp.WithDescription("Discover the offer listing pages of a merchant and return the page plan."),
		mcp.WithString("vendor_id",
			mcp.Required(),
			mcp.Description("Merchant slug as it appears in /negozi/{vendor_id}"),
		),
		mcp.WithBoolean("by_category",
			mcp.Description("Plan one entry per category page instead of walking the unfiltered listing"),
		),
	), handlePaginationURLs(client))

	s.AddTool(mcp.NewTool("scrape_seller_products",
		mcp.WithDescription("Scrape every offer page of a merchant. The page plan is discovered first, then crawled in batches; each page is pushed to the business API."),
		mcp.WithString("vendor_id",
			mcp.Required(),
			mcp.Description("Merchant slug as it appears in /negozi/{vendor_id}"),
		),
		mcp.WithNumber("batch_size",
			mcp.Description("Pages fetched concurrently per batch (default: server setting)"),
		),
	), handleSellerProducts(client))

	s.AddTool(mcp.NewTool("scrape_products_competitors",
		mcp.WithDescription("Find the prices other merchants offer for a list of products and report the job to the business API."),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("Identifier of the competitors job"),
		),
		mcp.WithString("products",
			mcp.Required(),
			mcp.Description(`JSON array of products: [{"id": 1, "name": "HP Laptop 15 9B9R8EA", "category": {"id": "27"}}]`),
		),
	), handleCompetitors(client))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

// toolResult renders a finished action: the error when it failed, the
// indented data otherwise.
func toolResult(res *actionResult, err error) *mcp.CallToolResult {
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	if !res.Success {
		msg := res.Action + " failed"
		if res.Error != nil {
			msg = fmt.Sprintf("[%s] %s", res.Error.Code, res.Error.Message)
		}
		return mcp.NewToolResultError(msg)
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, res.Data, "", "  "); err != nil {
		pretty.Write(res.Data)
	}
	return mcp.NewToolResultText(pretty.String())
}

func handleMerchantInfo(c *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		vendor, err := request.RequireString("vendor_id")
		if err != nil {
			return mcp.NewToolResultError("vendor_id is required"), nil
		}
		return toolResult(c.call(ctx, "scrape_merchant_info", map[string]string{"vendor_id": vendor})), nil
	}
}

func handlePaginationURLs(c *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		vendor, err := request.RequireString("vendor_id")
		if err != nil {
			return mcp.NewToolResultError("vendor_id is required"), nil
		}
		payload := map[string]any{
			"vendor_id":   vendor,
			"by_category": request.GetBool("by_category", false),
		}
		return toolResult(c.call(ctx, "get_pagination_urls", payload)), nil
	}
}

func handleSellerProducts(c *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		vendor, err := request.RequireString("vendor_id")
		if err != nil {
			return mcp.NewToolResultError("vendor_id is required"), nil
		}

		planRes, err := c.call(ctx, "get_pagination_urls", map[string]string{"vendor_id": vendor})
		if err != nil || !planRes.Success {
			return toolResult(planRes, err), nil
		}
		var plan struct {
			Pages []pageRef `json:"pages"`
		}
		if err := json.Unmarshal(planRes.Data, &plan); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse page plan: %v", err)), nil
		}

		payload := map[string]any{"pages": plan.Pages}
		if n := request.GetInt("batch_size", 0); n > 0 {
			payload["batch_size"] = n
		}
		res, err := c.call(ctx, "scrape_seller_products_by_category", payload)
		if err != nil || !res.Success {
			return toolResult(res, err), nil
		}

		var out struct {
			Vendor        string    `json:"vendor"`
			Pages         []pageRef `json:"pages"`
			ScrapedPages  int       `json:"scraped_pages"`
			TotalProducts int       `json:"total_products"`
		}
		if err := json.Unmarshal(res.Data, &out); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse crawl result: %v", err)), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "%s: %d/%d pages scraped, %d products\n\n", out.Vendor, out.ScrapedPages, len(out.Pages), out.TotalProducts)
		for _, p := range out.Pages {
			state := "ok"
			if !p.Scraped {
				state = "PENDING"
			}
			fmt.Fprintf(&sb, "[%s] page %d: %d products  %s\n", state, p.PageNumber, p.ProductCount, p.URL)
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func handleCompetitors(c *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jobID, err := request.RequireString("job_id")
		if err != nil {
			return mcp.NewToolResultError("job_id is required"), nil
		}
		productsStr, err := request.RequireString("products")
		if err != nil {
			return mcp.NewToolResultError("products is required"), nil
		}
		var products []json.RawMessage
		if err := json.Unmarshal([]byte(productsStr), &products); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("products must be a JSON array: %v", err)), nil
		}

		payload := map[string]any{"job_id": jobID, "products": products}
		return toolResult(c.call(ctx, "scrape_products_competitors", payload)), nil
	}
}
