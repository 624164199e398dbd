package core

import "time"

// ChartRecord is one chart data row as served to the dashboard. The JSON
// keys are the labels the dashboard script reads.
type ChartRecord struct {
	BillCode     string `json:"Mã đơn hàng"`
	CustomerCode string `json:"Mã khách hàng"`
	CreatedAt    string `json:"Thời gian tạo đơn"`
	ProductCode  string `json:"Mã mặt hàng"`
	ProductName  string `json:"Tên mặt hàng"`
	CategoryCode string `json:"Mã nhóm hàng"`
	CategoryName string `json:"Tên nhóm hàng"`
	Quantity     int64  `json:"SL"`
	Revenue      int64  `json:"Thành tiền"`
}

func newChartRecord(r ChartRow, loc *time.Location) ChartRecord {
	return ChartRecord{
		BillCode:     r.BillCode,
		CustomerCode: r.CustomerCode,
		CreatedAt:    FormatTimestamp(r.CreatedAt, loc),
		ProductCode:  r.ProductCode,
		ProductName:  r.ProductName,
		CategoryCode: r.CategoryCode,
		CategoryName: r.CategoryName,
		Quantity:     r.Quantity,
		Revenue:      r.Revenue,
	}
}
