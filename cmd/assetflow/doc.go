// Command assetflow loads game assets into the local store, keeps the store
// healthy and inspects its contents.
package main
