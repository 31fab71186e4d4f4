// Package alkoteka crawls the alkoteka.com product API.
//
// A crawl has three stages. Start requests list every product of a root
// category for one city; ParseCategory turns the listing into one detail
// request per product; ParseItem turns a product detail into a Product
// record.
package alkoteka
