// Package es 提供了把转换结果写入 Elasticsearch 的功能。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"pcconv-go/internal/config"
	"pcconv-go/internal/model"
	"pcconv-go/pkg/log"
)

// indexMapping 定义结果索引的字段类型，时间字段使用 model.LocalTimeFormat。
const indexMapping = `{
	"mappings": {
		"properties": {
			"result_id": { "type": "keyword" },
			"batch_id": { "type": "keyword" },
			"input_file_path": { "type": "keyword" },
			"input_file_name": { "type": "text", "fields": { "raw": { "type": "keyword" } } },
			"output_directory": { "type": "keyword" },
			"is_success": { "type": "boolean" },
			"error_message": { "type": "text" },
			"start_time": { "type": "date", "format": "yyyy-MM-dd HH:mm:ss" },
			"end_time": { "type": "date", "format": "yyyy-MM-dd HH:mm:ss" },
			"duration_ms": { "type": "long" },
			"input_file_size_bytes": { "type": "long" },
			"output_file_count": { "type": "integer" }
		}
	}
}`

// Indexer 把转换结果写入一个索引，文档 ID 使用结果 ID。
type Indexer struct {
	client    *elasticsearch.Client
	indexName string
}

// NewIndexer 初始化 Elasticsearch 客户端并确保索引存在。
func NewIndexer(esCfg config.ElasticsearchConfig) (*Indexer, error) {
	var addresses []string
	for _, a := range strings.Split(esCfg.Addresses, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addresses = append(addresses, a)
		}
	}
	cfg := elasticsearch.Config{
		Addresses: addresses,
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	idx := &Indexer{client: client, indexName: esCfg.IndexName}
	if err := idx.createIndexIfNotExists(); err != nil {
		return nil, err
	}
	return idx, nil
}

// createIndexIfNotExists 检查索引是否存在，如果不存在则创建它
func (i *Indexer) createIndexIfNotExists() error {
	res, err := i.client.Indices.Exists([]string{i.indexName})
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	res.Body.Close()
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", i.indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	res, err = i.client.Indices.Create(
		i.indexName,
		i.client.Indices.Create.WithBody(strings.NewReader(indexMapping)),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", i.indexName, err)
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", i.indexName, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("索引 '%s' 创建成功", i.indexName)
	return nil
}

// IndexResult 写入（或覆盖）一个转换结果文档。
func (i *Indexer) IndexResult(ctx context.Context, doc model.EsResultDocument) error {
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      i.indexName,
		DocumentID: doc.ResultID,
		Body:       bytes.NewReader(docBytes),
	}
	res, err := req.Do(ctx, i.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("索引文档到 Elasticsearch 出错: %s", res.String())
		return fmt.Errorf("failed to index result %s", doc.ResultID)
	}
	return nil
}
