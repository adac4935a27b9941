package crawler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pricescout_crawl_pages_total",
		Help: "Offer pages handled by batch crawls by outcome (scraped, failed, skipped).",
	}, []string{"outcome"})

	productsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pricescout_crawl_products_total",
		Help: "Products extracted from offer pages.",
	})
)
