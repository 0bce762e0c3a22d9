package steamweb

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// MaxItemsPerInventoryRequest caps the page size of a single inventory
// request; Steam rejects larger counts.
const MaxItemsPerInventoryRequest = 5000

// InventoryItem is one asset from a community inventory, joined with its
// description.
type InventoryItem struct {
	AppID      int
	ContextID  string
	AssetID    string
	ClassID    string
	InstanceID string
	Amount     string

	Name           string
	MarketHashName string
	Type           string
	Tradable       bool
	Marketable     bool
}

type inventoryResponse struct {
	Success             int                    `json:"success"`
	TotalInventoryCount int                    `json:"total_inventory_count"`
	Assets              []inventoryAsset       `json:"assets"`
	Descriptions        []inventoryDescription `json:"descriptions"`
	MoreItems           int                    `json:"more_items"`
	LastAssetID         string                 `json:"last_assetid"`
}

type inventoryAsset struct {
	AppID      int    `json:"appid"`
	ContextID  string `json:"contextid"`
	AssetID    string `json:"assetid"`
	ClassID    string `json:"classid"`
	InstanceID string `json:"instanceid"`
	Amount     string `json:"amount"`
}

type inventoryDescription struct {
	ClassID        string `json:"classid"`
	InstanceID     string `json:"instanceid"`
	Name           string `json:"name"`
	MarketHashName string `json:"market_hash_name"`
	Type           string `json:"type"`
	Tradable       int    `json:"tradable"`
	Marketable     int    `json:"marketable"`
}

func descriptionKey(classID, instanceID string) string {
	return classID + "_" + instanceID
}

// Inventory fetches the complete inventory of an app context for the given
// account, following last_assetid continuation until Steam reports no more
// pages. Requires an initialized session for private inventories.
func (h *Handler) Inventory(ctx context.Context, steamID64 uint64, appID uint32, contextID uint64) ([]InventoryItem, error) {
	if steamID64 == 0 || appID == 0 {
		return nil, errors.New("steamweb: invalid inventory target")
	}

	basePath := fmt.Sprintf("/inventory/%d/%d/%d?l=english&count=%d",
		steamID64, appID, contextID, MaxItemsPerInventoryRequest)

	var items []InventoryItem
	startAssetID := ""

	for {
		path := basePath
		if startAssetID != "" {
			path += "&start_assetid=" + startAssetID
		}

		var resp inventoryResponse
		if err := h.GetJSON(ctx, HostCommunity, path, &resp); err != nil {
			return nil, err
		}
		if resp.Success != 1 {
			return nil, fmt.Errorf("steamweb: inventory request failed: success=%d", resp.Success)
		}

		descMap := make(map[string]inventoryDescription, len(resp.Descriptions))
		for _, desc := range resp.Descriptions {
			descMap[descriptionKey(desc.ClassID, desc.InstanceID)] = desc
		}

		for _, asset := range resp.Assets {
			desc := descMap[descriptionKey(asset.ClassID, asset.InstanceID)]
			items = append(items, InventoryItem{
				AppID:          asset.AppID,
				ContextID:      asset.ContextID,
				AssetID:        asset.AssetID,
				ClassID:        asset.ClassID,
				InstanceID:     asset.InstanceID,
				Amount:         asset.Amount,
				Name:           desc.Name,
				MarketHashName: desc.MarketHashName,
				Type:           desc.Type,
				Tradable:       desc.Tradable == 1,
				Marketable:     desc.Marketable == 1,
			})
		}

		if resp.MoreItems != 1 || resp.LastAssetID == "" {
			return items, nil
		}
		if _, err := strconv.ParseUint(resp.LastAssetID, 10, 64); err != nil {
			return nil, fmt.Errorf("steamweb: invalid last_assetid %q", resp.LastAssetID)
		}
		startAssetID = resp.LastAssetID
	}
}
